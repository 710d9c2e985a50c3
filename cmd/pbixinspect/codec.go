package main

// referenceCodec is a software-only stand-in for the real XPress9 codec: it
// treats every block it is handed as already uncompressed and copies it
// through verbatim. It is good enough to drive the pipeline against
// uncompressed or trivially-compressed fixtures; a production codec shim
// loaded from --codec-library-path is out of scope here.
type referenceCodec struct{}

func (referenceCodec) Init() bool { return true }
func (referenceCodec) Free()      {}
func (referenceCodec) Decompress(src, dst []byte) int {
	return copy(dst, src)
}
