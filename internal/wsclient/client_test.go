package wsclient

import "testing"

func TestSendFailsFastWhenNotConnected(t *testing.T) {
	c := New(Options{URL: "ws://127.0.0.1:0/"})
	err := c.Send(nil, "heartbeat", nil) //nolint:staticcheck // nil ctx ok, Send never touches it before the nil-conn check
	if err != ErrNotConnected {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
}
