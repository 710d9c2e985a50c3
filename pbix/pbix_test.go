package pbix

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"testing"

	"pbixdecode/internal/sqlitedb/sqlitefixture"
)

// passthroughCodec is a reference software-only XPress9 stand-in: it
// treats every block as already uncompressed and copies it verbatim,
// good enough for fixtures that don't exercise real compression.
type passthroughCodec struct{ initCalled, freeCalled int }

func (c *passthroughCodec) Init() bool { c.initCalled++; return true }
func (c *passthroughCodec) Free()      { c.freeCalled++ }
func (c *passthroughCodec) Decompress(src, dst []byte) int {
	return copy(dst, src)
}

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

// buildXpress9Stream wraps payload in a single-threaded XPress9 stream
// whose lone block is stored with equal comp/uncomp sizes (an identity
// block under the passthrough codec).
func buildXpress9Stream(payload []byte) []byte {
	var buf bytes.Buffer
	header := utf16leZ("single-threaded-fixture")
	buf.Write(header)
	for buf.Len() < 102 {
		buf.WriteByte(0)
	}
	binary.Write(&buf, binary.LittleEndian, uint32(len(payload)))
	binary.Write(&buf, binary.LittleEndian, uint32(len(payload)))
	buf.Write(payload)
	return buf.Bytes()
}

func tableRowValues(name string, isHidden bool) []any {
	v := make([]any, 6)
	v[2] = name
	v[5] = isHidden
	return v
}

func columnRowValues(tableID int64, name string, dataType, colType int64) []any {
	v := make([]any, 23)
	v[1] = tableID
	v[2] = name
	v[4] = dataType
	v[19] = colType
	return v
}

// buildABFStream wraps a metadata.sqlitedb payload in a minimal ABF
// container: 72 bytes of padding, a BackupLogHeader, a VirtualDirectory,
// a BackupLog, then the payload itself.
func buildABFStream(t *testing.T, sqliteBytes []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	buf.Write(make([]byte, 72))
	headerPos := buf.Len()

	logXML := []byte(`<BackupLog><BackupFile><Path>Data\metadata.sqlitedb</Path><StoragePath>vd/metadata.sqlitedb</StoragePath><Size>` +
		fmt.Sprint(len(sqliteBytes)) + `</Size></BackupFile></BackupLog>`)

	buildVD := func(base int) []byte {
		var vd bytes.Buffer
		vd.WriteString(`<VirtualDirectory>`)
		fmt.Fprintf(&vd, `<BackupFile><Path>vd/metadata.sqlitedb</Path><Size>%010d</Size><m_cbOffsetHeader>%010d</m_cbOffsetHeader></BackupFile>`,
			len(sqliteBytes), base)
		fmt.Fprintf(&vd, `<BackupFile><Path>vd/backuplog</Path><Size>%010d</Size><m_cbOffsetHeader>%010d</m_cbOffsetHeader></BackupFile>`,
			len(logXML), base+len(sqliteBytes))
		vd.WriteString(`</VirtualDirectory>`)
		return vd.Bytes()
	}

	headerUTF16 := func(vdOffset, vdSize int) []byte {
		xmlDoc := fmt.Sprintf(
			`<BackupLogHeader><m_cbOffsetHeader>%010d</m_cbOffsetHeader><DataSize>%010d</DataSize><ErrorCode>false</ErrorCode><ApplyCompression>false</ApplyCompression></BackupLogHeader>`,
			vdOffset, vdSize)
		return utf16leZ(xmlDoc)
	}

	probeHeader := headerUTF16(0, 0)
	vdOffset := headerPos + len(probeHeader)
	probeVD := buildVD(0)
	payloadBase := vdOffset + len(probeVD)

	finalVD := buildVD(payloadBase)
	if len(finalVD) != len(probeVD) {
		t.Fatalf("VD length unstable across rebase")
	}
	finalHeader := headerUTF16(vdOffset, len(finalVD))
	if len(finalHeader) != len(probeHeader) {
		t.Fatalf("header length unstable across rebase")
	}

	buf.Write(finalHeader)
	buf.Write(finalVD)
	buf.Write(sqliteBytes)
	buf.Write(logXML)

	return buf.Bytes()
}

func TestParsePbixDataModel_BuildsSemanticModel(t *testing.T) {
	b := sqlitefixture.New()
	b.AddTable("Table", []sqlitefixture.Row{
		{RowID: 1, Values: tableRowValues("Sales", false)},
		{RowID: 2, Values: tableRowValues("LocalDateTable_abc", true)},
	})
	b.AddTable("Column", []sqlitefixture.Row{
		{RowID: 1, Values: columnRowValues(1, "ProductKey", 6, 1)},
	})
	b.AddTable("Measure", nil)
	b.AddTable("Relationship", nil)
	b.AddTable("Role", nil)
	b.AddTable("TablePermission", nil)
	b.AddTable("ColumnStorage", nil)
	b.AddTable("ColumnPartitionStorage", nil)
	b.AddTable("StorageFile", nil)
	b.AddTable("DictionaryStorage", nil)
	b.AddTable("AttributeHierarchy", nil)
	b.AddTable("AttributeHierarchyStorage", nil)

	sqliteBytes, err := b.Build()
	if err != nil {
		t.Fatalf("Build sqlite fixture: %v", err)
	}

	abfStream := buildABFStream(t, sqliteBytes)
	dataModel := buildXpress9Stream(abfStream)

	result, err := ParsePbixDataModel(dataModel, &passthroughCodec{}, nil, nil)
	if err != nil {
		t.Fatalf("ParsePbixDataModel: %v", err)
	}

	if result.Session.SessionID.String() == "" {
		t.Fatal("expected a non-empty session ID")
	}
	if len(result.Model.Tables) != 1 || result.Model.Tables[0].Name != "Sales" {
		t.Fatalf("got tables %+v, want only Sales", result.Model.Tables)
	}

	names := result.Extractor.TableNames()
	if len(names) != 1 || names[0] != "Sales" {
		t.Fatalf("got table names %v, want [Sales]", names)
	}
}

func TestParsePbixDataModel_ReportsEachStage(t *testing.T) {
	b := sqlitefixture.New()
	b.AddTable("Table", []sqlitefixture.Row{
		{RowID: 1, Values: tableRowValues("Sales", false)},
	})
	b.AddTable("Column", nil)
	b.AddTable("Measure", nil)
	b.AddTable("Relationship", nil)
	b.AddTable("Role", nil)
	b.AddTable("TablePermission", nil)

	sqliteBytes, err := b.Build()
	if err != nil {
		t.Fatalf("Build sqlite fixture: %v", err)
	}
	dataModel := buildXpress9Stream(buildABFStream(t, sqliteBytes))

	seen := make(map[string]bool)
	onProgress := func(stage string, current, total int64, message string) {
		seen[stage] = true
	}

	_, err = ParsePbixDataModel(dataModel, &passthroughCodec{}, nil, onProgress)
	if err != nil {
		t.Fatalf("ParsePbixDataModel: %v", err)
	}

	for _, stage := range []string{"decompress", "abf", "sqlite", "metadata", "columns"} {
		if !seen[stage] {
			t.Fatalf("stage %q was never reported", stage)
		}
	}
}

// P5: two runs over the same input bytes produce value-equal semantic
// models, including table/column ordering.
func TestParsePbixDataModel_Deterministic(t *testing.T) {
	b := sqlitefixture.New()
	b.AddTable("Table", []sqlitefixture.Row{
		{RowID: 1, Values: tableRowValues("Zeta", false)},
		{RowID: 2, Values: tableRowValues("Alpha", false)},
	})
	b.AddTable("Column", nil)
	b.AddTable("Measure", nil)
	b.AddTable("Relationship", nil)
	b.AddTable("Role", nil)
	b.AddTable("TablePermission", nil)

	sqliteBytes, err := b.Build()
	if err != nil {
		t.Fatalf("Build sqlite fixture: %v", err)
	}
	dataModel := buildXpress9Stream(buildABFStream(t, sqliteBytes))

	r1, err := ParsePbixDataModel(dataModel, &passthroughCodec{}, nil, nil)
	if err != nil {
		t.Fatalf("ParsePbixDataModel (1): %v", err)
	}
	r2, err := ParsePbixDataModel(dataModel, &passthroughCodec{}, nil, nil)
	if err != nil {
		t.Fatalf("ParsePbixDataModel (2): %v", err)
	}

	if len(r1.Model.Tables) != len(r2.Model.Tables) {
		t.Fatalf("table count differs across runs")
	}
	for i := range r1.Model.Tables {
		if r1.Model.Tables[i].Name != r2.Model.Tables[i].Name {
			t.Fatalf("table order differs across runs: %v vs %v", r1.Model.Tables, r2.Model.Tables)
		}
	}
	if r1.Model.Tables[0].Name != "Alpha" || r1.Model.Tables[1].Name != "Zeta" {
		t.Fatalf("got %v, want sorted [Alpha Zeta]", r1.Model.Tables)
	}
}
