package abf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"testing"
)

func utf16leZ(s string) []byte {
	var buf bytes.Buffer
	for _, r := range s {
		var tmp [2]byte
		binary.LittleEndian.PutUint16(tmp[:], uint16(r))
		buf.Write(tmp[:])
	}
	buf.Write([]byte{0, 0})
	return buf.Bytes()
}

// buildFixture assembles a minimal decompressed ABF stream: 72 bytes of
// padding, a BackupLogHeader at offset 72, a VirtualDirectory XML blob, a
// BackupLog XML blob, and two "file" payloads referenced by both.
func buildFixture(t *testing.T, errorCode, applyCompression bool) ([]byte, map[string][]byte) {
	t.Helper()

	payloads := map[string][]byte{
		"metadata.sqlitedb":     []byte("SQLite format 3\x00fake-metadata-bytes"),
		"Sales_ProductKey.idf": []byte("idf-payload-bytes"),
	}

	var buf bytes.Buffer
	buf.Write(make([]byte, headerStart)) // 0..71 padding
	headerPos := buf.Len()

	// Payload offsets/sizes below are relative to the start of the payload
	// region; they get rebased to absolute buffer offsets once the header
	// and VirtualDirectory lengths are known (both fixed-width, so the
	// rebase doesn't change either length).
	var payloadBuf bytes.Buffer
	type relEntry struct{ offset, size int }
	offsets := map[string]relEntry{}
	for _, name := range []string{"metadata.sqlitedb", "Sales_ProductKey.idf"} {
		p := payloads[name]
		off := payloadBuf.Len()
		payloadBuf.Write(p)
		if errorCode {
			payloadBuf.Write([]byte{0xAA, 0xAA, 0xAA, 0xAA}) // trailing 4 bytes trimmed
		}
		offsets[name] = relEntry{off, payloadBuf.Len() - off}
	}

	backupLogXMLBytes := []byte(
		`<BackupLog>` +
			`<BackupFile><Path>Data\metadata.sqlitedb</Path><StoragePath>vd/metadata.sqlitedb</StoragePath><Size>` +
			fmt.Sprint(len(payloads["metadata.sqlitedb"])) +
			`</Size></BackupFile>` +
			`<BackupFile><Path>Data\Sales_ProductKey.idf</Path><StoragePath>vd/Sales_ProductKey.idf</StoragePath></BackupFile>` +
			`</BackupLog>`)
	if errorCode {
		backupLogXMLBytes = append(backupLogXMLBytes, 0xAA, 0xAA, 0xAA, 0xAA)
	}
	logOff := payloadBuf.Len()
	payloadBuf.Write(backupLogXMLBytes)
	logSize := payloadBuf.Len() - logOff

	// VirtualDirectory XML, with every offset/size field fixed at 10
	// digits so rebasing the payload region later cannot change its
	// encoded length.
	buildVD := func(base int) []byte {
		var vd bytes.Buffer
		vd.WriteString(`<VirtualDirectory>`)
		for _, name := range []string{"metadata.sqlitedb", "Sales_ProductKey.idf"} {
			e := offsets[name]
			fmt.Fprintf(&vd, `<BackupFile><Path>vd/%s</Path><Size>%010d</Size><m_cbOffsetHeader>%010d</m_cbOffsetHeader></BackupFile>`, name, e.size, base+e.offset)
		}
		fmt.Fprintf(&vd, `<BackupFile><Path>vd/backuplog</Path><Size>%010d</Size><m_cbOffsetHeader>%010d</m_cbOffsetHeader></BackupFile>`, logSize, base+logOff)
		vd.WriteString(`</VirtualDirectory>`)
		return vd.Bytes()
	}

	headerUTF16 := func(vdOffset, vdSize int) []byte {
		xmlDoc := fmt.Sprintf(
			`<BackupLogHeader><m_cbOffsetHeader>%010d</m_cbOffsetHeader><DataSize>%010d</DataSize><ErrorCode>%t</ErrorCode><ApplyCompression>%t</ApplyCompression></BackupLogHeader>`,
			vdOffset, vdSize, errorCode, applyCompression)
		return utf16leZ(xmlDoc)
	}

	probeHeader := headerUTF16(0, 0)
	vdOffset := headerPos + len(probeHeader)
	probeVD := buildVD(0)
	payloadBase := vdOffset + len(probeVD)

	finalVD := buildVD(payloadBase)
	if len(finalVD) != len(probeVD) {
		t.Fatalf("virtual directory length unstable across rebase: %d vs %d", len(finalVD), len(probeVD))
	}
	finalHeader := headerUTF16(vdOffset, len(finalVD))
	if len(finalHeader) != len(probeHeader) {
		t.Fatalf("header length unstable across offset substitution: %d vs %d", len(finalHeader), len(probeHeader))
	}

	buf.Write(finalHeader)
	buf.Write(finalVD)
	buf.Write(payloadBuf.Bytes())

	return buf.Bytes(), payloads
}

func TestParse_RoundTripsAllFiles(t *testing.T) {
	stream, payloads := buildFixture(t, false, false)

	idx, err := Parse(stream)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	names := idx.FileNames()
	if len(names) != len(payloads) {
		t.Fatalf("got %d files, want %d (%v)", len(names), len(payloads), names)
	}

	for name, want := range payloads {
		got, err := idx.GetDataSlice(name)
		if err != nil {
			t.Fatalf("GetDataSlice(%q): %v", name, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("GetDataSlice(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestParse_ErrorCodeTrimsTrailingBytes(t *testing.T) {
	stream, payloads := buildFixture(t, true, false)

	idx, err := Parse(stream)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	for name, want := range payloads {
		got, err := idx.GetDataSlice(name)
		if err != nil {
			t.Fatalf("GetDataSlice(%q): %v", name, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("GetDataSlice(%q) = %q, want %q (errorCode trim)", name, got, want)
		}
	}
}

func TestParse_FileNotFound(t *testing.T) {
	stream, _ := buildFixture(t, false, false)
	idx, err := Parse(stream)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := idx.GetDataSlice("does-not-exist"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestParse_MalformedHeaderOnShortBuffer(t *testing.T) {
	if _, err := Parse(make([]byte, 10)); err == nil {
		t.Fatal("expected malformed header error for short buffer")
	}
}
