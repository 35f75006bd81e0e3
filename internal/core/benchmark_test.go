package core

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"
)

// ============================================================================
// Conversion Benchmarks
// ============================================================================

// BenchmarkParseMobile covers the mobile formats seen in spreadsheet exports.
// This runs once per imported row.
func BenchmarkParseMobile(b *testing.B) {
	testCases := []string{
		"9876543210",
		"9.87654321E+09", // Excel scientific notation
		"9876543210.0",
		"  9876543210  ",
		"+919876543210",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, tc := range testCases {
			_, _ = ParseMobile(tc)
		}
	}
}

// BenchmarkParseMobile_Simple benchmarks the common case: plain digits.
func BenchmarkParseMobile_Simple(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_, _ = ParseMobile("9876543210")
	}
}

func BenchmarkCleanCell(b *testing.B) {
	testCases := []string{
		"Alice",
		"  padded  ",
		`="0012345"`, // Excel text formula
		"",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, tc := range testCases {
			CleanCell(tc)
		}
	}
}

func BenchmarkMakeHeaderIndex(b *testing.B) {
	header := []string{"Name", " Mobile "}
	for i := 0; i < b.N; i++ {
		MakeHeaderIndex(header)
	}
}

// ============================================================================
// Import Pipeline Benchmarks
// ============================================================================

// BenchmarkParseUpload_CSV measures decode cost for a typical roster file.
func BenchmarkParseUpload_CSV(b *testing.B) {
	data := generateRosterCSV(1000)

	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ParseUpload(bytes.NewReader(data), MediaTypeCSV); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkParseUpload_CSVLarge(b *testing.B) {
	data := generateRosterCSV(50000)

	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ParseUpload(bytes.NewReader(data), MediaTypeCSV); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkRowValidator validates an already parsed file.
func BenchmarkRowValidator(b *testing.B) {
	pf, err := ParseUpload(bytes.NewReader(generateRosterCSV(1000)), MediaTypeCSV)
	if err != nil {
		b.Fatal(err)
	}
	v := NewRowValidator("", 20)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := v.Validate(pf); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkRowValidator_PhoneRegion adds libphonenumber checks per row.
func BenchmarkRowValidator_PhoneRegion(b *testing.B) {
	pf, err := ParseUpload(bytes.NewReader(generateRosterCSV(1000)), MediaTypeCSV)
	if err != nil {
		b.Fatal(err)
	}
	v := NewRowValidator("IN", 20)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = v.Validate(pf)
	}
}

func BenchmarkValidateHeader(b *testing.B) {
	header := []string{"name", "mobile"}
	for i := 0; i < b.N; i++ {
		_ = ValidateHeader(header)
	}
}

// BenchmarkTextReader measures BOM skipping and UTF-8 sanitizing on a large file.
func BenchmarkTextReader(b *testing.B) {
	data := append([]byte("\xef\xbb\xbf"), generateRosterCSV(50000)...)

	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := io.Copy(io.Discard, NewTextReader(bytes.NewReader(data))); err != nil {
			b.Fatal(err)
		}
	}
}

// ============================================================================
// Parallel Benchmarks
// ============================================================================

func BenchmarkParseMobileParallel(b *testing.B) {
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _ = ParseMobile("9876543210")
		}
	})
}

func BenchmarkCleanCellParallel(b *testing.B) {
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			CleanCell(`="0012345"`)
		}
	})
}

// generateRosterCSV returns a name,mobile file with the given number of data rows.
func generateRosterCSV(rows int) []byte {
	var sb strings.Builder
	sb.WriteString("name,mobile\n")
	for i := 0; i < rows; i++ {
		fmt.Fprintf(&sb, "Employee %d,%d\n", i, 9000000000+int64(i))
	}
	return []byte(sb.String())
}
