// Command docker2fl converts a Docker image into a flist artifact: it
// pulls the image, walks its layers, chunks and encrypts new content
// blocks into the stores named by --store, and writes the resulting tree
// into a fresh metadata database.
//
// Flags and control flow are a direct port of the original Rust
// docker2fl/src/main.rs: repeatable --store in the route-spec grammar,
// --image-name defaulting to the "latest" tag when none is given, registry
// credential flags threaded straight through to the pull, and deletion of
// the partially-written artifact file if conversion fails.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/threefoldtech/rfs/internal/dockerclient"
	"github.com/threefoldtech/rfs/pkg/cache"
	"github.com/threefoldtech/rfs/pkg/meta"
	"github.com/threefoldtech/rfs/pkg/rfslog"
	"github.com/threefoldtech/rfs/pkg/store"

	_ "github.com/threefoldtech/rfs/pkg/store/dirstore"
	_ "github.com/threefoldtech/rfs/pkg/store/httpstore"
	_ "github.com/threefoldtech/rfs/pkg/store/s3store"
	_ "github.com/threefoldtech/rfs/pkg/store/zdbstore"
)

var opts struct {
	debug       int
	stores      []string
	imageName   string
	username    string
	password    string
	auth        string
	email       string
	serverAddr  string
	identityTok string
	registryTok string
	dockerSock  string
	cacheDir    string
}

var log = rfslog.New(os.Stderr, 0)

var rootCmd = &cobra.Command{
	Use:   "docker2fl",
	Short: "convert a docker image to a flist",
	RunE: func(cmd *cobra.Command, args []string) error {
		log.SetLevel(opts.debug)
		return run()
	},
}

func init() {
	flags := rootCmd.Flags()
	flags.CountVarP(&opts.debug, "debug", "d", "enable debugging logs")
	flags.StringArrayVarP(&opts.stores, "store", "s", nil,
		"store url in the format [xx-xx=]<url>. the range xx-xx is optional and used for sharding")
	flags.StringVarP(&opts.imageName, "image-name", "i", "", "name of the docker image to be converted to flist")
	flags.StringVar(&opts.username, "username", "", "docker hub server username")
	flags.StringVar(&opts.password, "password", "", "docker hub server password")
	flags.StringVar(&opts.auth, "auth", "", "docker hub server auth")
	flags.StringVar(&opts.email, "email", "", "docker hub server email")
	flags.StringVar(&opts.serverAddr, "server-address", "", "docker hub server address")
	flags.StringVar(&opts.identityTok, "identity-token", "", "docker hub server identity token")
	flags.StringVar(&opts.registryTok, "registry-token", "", "docker hub server registry token")
	flags.StringVar(&opts.dockerSock, "docker-sock", "/var/run/docker.sock", "path to the docker engine API socket")
	flags.StringVar(&opts.cacheDir, "cache", "/tmp/cache", "directory used as cache for chunked blocks")

	_ = rootCmd.MarkFlagRequired("store")
	_ = rootCmd.MarkFlagRequired("image-name")
}

// flistName derives the artifact filename from an image reference the same
// way the Rust binary does: replace ':' and '/' with '-', append ".fl".
func flistName(image string) string {
	replacer := strings.NewReplacer(":", "-", "/", "-")
	return replacer.Replace(image) + ".fl"
}

func run() error {
	image := opts.imageName
	if !strings.Contains(image, ":") {
		image += ":latest"
	}

	creds := &dockerclient.Credentials{
		Username:      opts.username,
		Password:      opts.password,
		Auth:          opts.auth,
		Email:         opts.email,
		ServerAddress: opts.serverAddr,
		IdentityToken: opts.identityTok,
		RegistryToken: opts.registryTok,
	}

	flName := flistName(image)
	db, err := meta.Create(flName)
	if err != nil {
		return fmt.Errorf("initializing metadata database %q: %w", flName, err)
	}

	if err := convert(db, image, creds); err != nil {
		db.Close()
		if rmErr := os.Remove(flName); rmErr != nil {
			log.Errorf("docker2fl", "removing partial artifact %q: %v", flName, rmErr)
		}
		return err
	}

	return db.Close()
}

func convert(db *meta.DB, image string, creds *dockerclient.Credentials) error {
	ctx := context.Background()

	router, err := store.BuildRouter(ctx, opts.stores)
	if err != nil {
		return fmt.Errorf("initializing stores: %w", err)
	}

	routes := make([]store.Route, 0, len(opts.stores))
	for _, spec := range opts.stores {
		start, end, rawURL, err := store.ParseRouteSpec(spec)
		if err != nil {
			return err
		}
		routes = append(routes, store.Route{Start: start, End: end, URL: rawURL})
	}
	if err := db.SetRoutes(routes); err != nil {
		return fmt.Errorf("recording store routes: %w", err)
	}

	chunkCache, err := cache.New(opts.cacheDir, router)
	if err != nil {
		return fmt.Errorf("initializing cache: %w", err)
	}

	docker := dockerclient.New(opts.dockerSock)
	converter := NewConverter(docker, db, router, chunkCache)

	log.Infof("docker2fl", "converting %s", image)
	return converter.Convert(ctx, image, creds)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
