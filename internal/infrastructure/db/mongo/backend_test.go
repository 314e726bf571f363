package mongo

import (
	"context"
	"testing"
	"time"
)

func TestOpen_UnreachableDeployment(t *testing.T) {
	_, err := Open(context.Background(), Config{
		URI:      "mongodb://127.0.0.1:1/?directConnection=true",
		Database: "servicedesk_test",
		Timeout:  300 * time.Millisecond,
	})
	if err == nil {
		t.Fatalf("expected an error for an unreachable deployment")
	}
}
