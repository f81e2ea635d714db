package validator

import (
	"strings"
	"testing"
)

type sampleRequest struct {
	Name  string `validate:"required,min=3"`
	Count int    `validate:"min=1,max=10"`
	Mode  string `validate:"omitempty,oneof=sequential random"`
}

func TestValidate(t *testing.T) {
	v := New()

	if err := v.Validate(&sampleRequest{Name: "abc", Count: 5}); err != nil {
		t.Errorf("valid struct rejected: %v", err)
	}

	err := v.Validate(&sampleRequest{Count: 5})
	if err == nil {
		t.Fatal("missing required field accepted")
	}
	if !strings.Contains(err.Error(), "Name") {
		t.Errorf("error should name the field: %v", err)
	}

	if err := v.Validate(&sampleRequest{Name: "abc", Count: 99}); err == nil {
		t.Error("out-of-range count accepted")
	}

	if err := v.Validate(&sampleRequest{Name: "abc", Count: 1, Mode: "shuffled"}); err == nil {
		t.Error("invalid oneof value accepted")
	}
}
