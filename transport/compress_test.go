package transport

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompressedRoundTrip(t *testing.T) {
	cch, sch := Direct()
	cwrap, err := Compressed(cch)
	require.NoError(t, err)
	swrap, err := Compressed(sch)
	require.NoError(t, err)
	defer cwrap.Close()
	defer swrap.Close()

	want := []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	// Direct channels are unbuffered, so Send blocks until Recv takes the
	// record; send from another goroutine.
	sent := make(chan error, 1)
	go func() { sent <- cwrap.Send(want) }()

	got, err := swrap.Recv()
	require.NoError(t, err)
	require.NoError(t, <-sent)
	require.Equal(t, want, got)
}
