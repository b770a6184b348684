package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/go-cmp/cmp"
)

var fixedNow = func() time.Time { return time.Date(2024, 1, 21, 9, 5, 3, 0, time.UTC) }

func newTestExporter(t *testing.T, opts ...Option) (*Exporter, string) {
	t.Helper()
	dir := t.TempDir()
	sink, err := NewLocalSink(dir)
	if err != nil {
		t.Fatalf("NewLocalSink failed: %v", err)
	}
	return New(sink, append([]Option{WithClock(fixedNow)}, opts...)...), dir
}

func TestRender(t *testing.T) {
	rows := []Row{
		{"item_code": "ITEM001", "book_bulk": 100, "item_desc": "Chicken Biryani"},
		{"item_code": "ITEM002", "book_bulk": 75},
	}

	want := strings.Join([]string{
		"book_bulk | item_code | item_desc      ",
		"---------------------------------------",
		"100       | ITEM001   | Chicken Biryani",
		"75        | ITEM002   |                ",
		"",
	}, "\n")

	if diff := cmp.Diff(want, Render(rows)); diff != "" {
		t.Errorf("Render mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeRows(t *testing.T) {
	tests := []struct {
		name    string
		data    interface{}
		wantLen int
		wantErr error
	}{
		{"single record", map[string]interface{}{"a": 1}, 1, nil},
		{"record list", []map[string]interface{}{{"a": 1}, {"a": 2}}, 2, nil},
		{"decoded json list", []interface{}{map[string]interface{}{"a": 1.0}}, 1, nil},
		{"nil", nil, 0, ErrInvalidData},
		{"empty list", []interface{}{}, 0, ErrInvalidData},
		{"string", "TXN001", 0, ErrInvalidData},
		{"empty record", map[string]interface{}{}, 0, ErrInvalidItem},
		{"non-record item", []interface{}{"x"}, 0, ErrInvalidItem},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := NormalizeRows(tt.data)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
			if len(rows) != tt.wantLen {
				t.Errorf("expected %d rows, got %d", tt.wantLen, len(rows))
			}
		})
	}
}

func TestExportToText(t *testing.T) {
	e, dir := newTestExporter(t)
	ctx := context.Background()

	msg, err := e.ExportToText(ctx, map[string]interface{}{"flightNo": "EK0202"}, "")
	if err != nil {
		t.Fatalf("ExportToText failed: %v", err)
	}
	wantPath := filepath.Join(dir, "exported_data_20240121_090503.txt")
	if msg != "Successfully exported data to: "+wantPath {
		t.Errorf("unexpected message %q", msg)
	}
	content, err := os.ReadFile(wantPath)
	if err != nil {
		t.Fatalf("exported file missing: %v", err)
	}
	if !strings.HasPrefix(string(content), "flightNo\n--------\nEK0202") {
		t.Errorf("unexpected content %q", content)
	}

	msg, err = e.ExportToText(ctx, []interface{}{map[string]interface{}{"a": 1}}, "report")
	if err != nil {
		t.Fatalf("ExportToText failed: %v", err)
	}
	if !strings.HasSuffix(msg, filepath.Join(dir, "report.txt")) {
		t.Errorf("expected .txt to be appended, got %q", msg)
	}

	_, err = e.ExportToText(ctx, []interface{}{}, "")
	if !errors.Is(err, ErrInvalidData) ||
		UserMessage(err) != "Invalid data format. Expected a list of dictionaries or a single dictionary." {
		t.Errorf("unexpected error %v", err)
	}
}

func TestExportToText_StaysInDir(t *testing.T) {
	e, dir := newTestExporter(t)
	ctx := context.Background()
	data := map[string]interface{}{"a": 1}

	for _, name := range []string{"../escaped", "sub/report", `..\escaped`, "/tmp/abs", "reports/../../x"} {
		t.Run(name, func(t *testing.T) {
			msg, err := e.ExportToText(ctx, data, name)
			if !errors.Is(err, ErrInvalidName) {
				t.Fatalf("expected ErrInvalidName, got %q, %v", msg, err)
			}
		})
	}

	if _, err := os.Stat(filepath.Join(filepath.Dir(dir), "escaped.txt")); !os.IsNotExist(err) {
		t.Errorf("file written outside export dir: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no exports, found %d", len(entries))
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrInvalidItem, "Invalid data format. Each item should be a dictionary."},
		{fmt.Errorf("error exporting data: %w", errors.New("disk full")), "Error exporting data: disk full"},
	}
	for _, tt := range tests {
		if got := UserMessage(tt.err); got != tt.want {
			t.Errorf("UserMessage(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestNamedExports(t *testing.T) {
	var kinds, locations []string
	e, dir := newTestExporter(t, WithHook(func(ctx context.Context, kind, location string, err error) {
		kinds = append(kinds, kind)
		locations = append(locations, location)
	}))
	ctx := context.Background()
	rows := []Row{{"item_code": "ITEM001"}}

	tests := []struct {
		name string
		run  func() (string, error)
		file string
	}{
		{"stock count with txn", func() (string, error) { return e.ExportStockCount(ctx, rows, "TXN001") }, "stock_count_TXN001_20240121_090503.txt"},
		{"stock count without txn", func() (string, error) { return e.ExportStockCount(ctx, rows, "") }, "stock_count_20240121_090503.txt"},
		{"pre approval", func() (string, error) { return e.ExportPreApproval(ctx, rows) }, "pre_approval_20240121_090503.txt"},
		{"post approval", func() (string, error) { return e.ExportPostApproval(ctx, rows) }, "post_approval_20240121_090503.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := tt.run()
			if err != nil {
				t.Fatalf("export failed: %v", err)
			}
			if msg != "Successfully exported data to: "+filepath.Join(dir, tt.file) {
				t.Errorf("unexpected message %q", msg)
			}
		})
	}

	want := []string{KindStockCount, KindStockCount, KindPreApproval, KindPostApproval}
	if diff := cmp.Diff(want, kinds); diff != "" {
		t.Errorf("hook kinds mismatch (-want +got):\n%s", diff)
	}
	if last := locations[len(locations)-1]; last != filepath.Join(dir, "post_approval_20240121_090503.txt") {
		t.Errorf("unexpected hook location %q", last)
	}
}

type fakeS3 struct {
	bucket, key, body string
	err               error
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.bucket = aws.ToString(in.Bucket)
	f.key = aws.ToString(in.Key)
	b, _ := io.ReadAll(in.Body)
	f.body = string(b)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Sink(t *testing.T) {
	client := &fakeS3{}
	e := New(NewS3Sink(client, "catering-exports", "approvals"), WithClock(fixedNow))

	msg, err := e.ExportPostApproval(context.Background(), []Row{{"item_code": "ITEM006"}})
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if msg != "Successfully exported data to: s3://catering-exports/approvals/post_approval_20240121_090503.txt" {
		t.Errorf("unexpected message %q", msg)
	}
	if client.key != "approvals/post_approval_20240121_090503.txt" || !strings.Contains(client.body, "ITEM006") {
		t.Errorf("unexpected upload %+v", client)
	}

	if _, err := e.ExportToText(context.Background(), []Row{{"a": 1}}, "../other/key"); !errors.Is(err, ErrInvalidName) {
		t.Errorf("expected ErrInvalidName for a nested key, got %v", err)
	}
	if client.key != "approvals/post_approval_20240121_090503.txt" {
		t.Errorf("rejected key reached the client: %q", client.key)
	}

	client.err = errors.New("access denied")
	if _, err := e.ExportPreApproval(context.Background(), []Row{{"a": 1}}); err == nil ||
		!strings.HasPrefix(UserMessage(err), "Error exporting data") {
		t.Errorf("expected wrapped upload error, got %v", err)
	}
}
