package s3store

import (
	"encoding/hex"

	"github.com/aws/aws-sdk-go/aws/credentials"
)

// keyName renders a block key as the S3 object key: its lowercase hex form.
func keyName(key []byte) string {
	return hex.EncodeToString(key)
}

// credentialsFromStatic wraps a static access/secret key pair the way the
// teacher's options-driven config would populate credentials.NewStaticCredentials
// (backend/s3/s3.go's setCredentials counterpart), but sourced from the
// route URL's userinfo rather than a config file.
func credentialsFromStatic(accessKey, secretKey string) *credentials.Credentials {
	return credentials.NewStaticCredentials(accessKey, secretKey, "")
}
