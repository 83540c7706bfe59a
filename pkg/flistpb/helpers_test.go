package flistpb

import "google.golang.org/protobuf/encoding/protowire"

func appendUnknownVarintField(buf []byte, num protowire.Number, value uint64) []byte {
	buf = protowire.AppendTag(buf, num, protowire.VarintType)
	buf = protowire.AppendVarint(buf, value)
	return buf
}
