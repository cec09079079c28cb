package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestEmbeddingResult_Success(t *testing.T) {
	vec := []float32{1, 2, 3}
	r := Success(BackendLocal, "mini", vec, 5*time.Millisecond, false)
	vec[0] = 99
	if r.Status() != StatusSuccess {
		t.Fatalf("status = %s", r.Status())
	}
	got, ok := r.Vector()
	if !ok || got[0] != 1 {
		t.Errorf("vector should be copied on construction, got %v", got)
	}
	if _, _, failed := r.Err(); failed {
		t.Error("success must not report a failure")
	}
	if r.FromCache() {
		t.Error("FromCache should be false")
	}
}

func TestEmbeddingResult_Failure(t *testing.T) {
	r := Failure(BackendRemote, "ada", KindUpstream, "boom")
	if r.Status() != StatusError {
		t.Fatalf("status = %s", r.Status())
	}
	if _, ok := r.Vector(); ok {
		t.Error("failure must not carry a vector")
	}
	kind, msg, failed := r.Err()
	if !failed || kind != KindUpstream || msg != "boom" {
		t.Errorf("Err() = %s, %q, %v", kind, msg, failed)
	}
	if r.Elapsed() != 0 {
		t.Error("failure elapsed should be zero")
	}
}

func TestEmbeddingResult_ZeroValueIsError(t *testing.T) {
	var r EmbeddingResult
	if r.Status() != StatusError {
		t.Errorf("zero value status = %s", r.Status())
	}
	if _, _, failed := r.Err(); !failed {
		t.Error("zero value should report a failure")
	}
}

func TestEmbeddingResult_JSON(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		data, err := json.Marshal(Success(BackendLocal, "mini", []float32{0.5}, 2*time.Millisecond, true))
		if err != nil {
			t.Fatal(err)
		}
		s := string(data)
		for _, want := range []string{`"status":"success"`, `"embedding":[0.5]`, `"cache":true`, `"elapsed":2`, `"backend":"local"`} {
			if !strings.Contains(s, want) {
				t.Errorf("missing %s in %s", want, s)
			}
		}
		if strings.Contains(s, "message") {
			t.Errorf("success should not carry a message: %s", s)
		}
		var back EmbeddingResult
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatal(err)
		}
		if !back.FromCache() || back.Elapsed() != 2*time.Millisecond {
			t.Errorf("decoded result mismatch: cache=%v elapsed=%v", back.FromCache(), back.Elapsed())
		}
	})
	t.Run("error", func(t *testing.T) {
		data, err := json.Marshal(Failure(BackendRemote, "ada", KindInvalidInput, "too long"))
		if err != nil {
			t.Fatal(err)
		}
		s := string(data)
		for _, want := range []string{`"status":"error"`, `"error_kind":"invalid_input"`, `"message":"too long"`} {
			if !strings.Contains(s, want) {
				t.Errorf("missing %s in %s", want, s)
			}
		}
		if strings.Contains(s, "embedding") {
			t.Errorf("error should not carry an embedding: %s", s)
		}
	})
	t.Run("unknown status", func(t *testing.T) {
		var r EmbeddingResult
		if err := json.Unmarshal([]byte(`{"status":"pending"}`), &r); err == nil {
			t.Error("expected error for unknown status")
		}
	})
}

func TestEmbedRequest_TextInput(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    []string
		wantNil bool
		wantErr bool
	}{
		{name: "single string", body: `{"text":"hello"}`, want: []string{"hello"}},
		{name: "array", body: `{"text":["a","b"]}`, want: []string{"a", "b"}},
		{name: "empty string", body: `{"text":""}`, want: []string{""}},
		{name: "empty array", body: `{"text":[]}`, want: []string{}},
		{name: "missing", body: `{"model":"local"}`, wantNil: true},
		{name: "null", body: `{"text":null}`, wantNil: true},
		{name: "number", body: `{"text":42}`, wantErr: true},
		{name: "null element", body: `{"text":["a",null]}`, wantErr: true},
		{name: "number element", body: `{"text":["a",1]}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req EmbedRequest
			err := json.Unmarshal([]byte(tt.body), &req)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if tt.wantNil {
				if req.Text != nil {
					t.Errorf("text = %v, want nil", req.Text)
				}
				return
			}
			if req.Text == nil || len(req.Text) != len(tt.want) {
				t.Fatalf("text = %v, want %v", req.Text, tt.want)
			}
			for i := range tt.want {
				if req.Text[i] != tt.want[i] {
					t.Errorf("text[%d] = %q, want %q", i, req.Text[i], tt.want[i])
				}
			}
		})
	}
}

func TestNewRecord(t *testing.T) {
	ok := NewRecord("hi", Success(BackendLocal, "mini", []float32{1}, time.Millisecond, false))
	if ok.Metadata.Status != StatusSuccess || len(ok.Embedding) != 1 || ok.Metadata.Elapsed != 1 {
		t.Errorf("success record = %+v", ok)
	}
	bad := NewRecord("hi", Failure(BackendRemote, "ada", KindUpstream, "500"))
	if bad.Metadata.Status != StatusError || bad.Metadata.Message != "500" || bad.Embedding == nil {
		t.Errorf("error record = %+v", bad)
	}
}
