package proc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aglotoff/codename-argentum/src/defs"
	"github.com/aglotoff/codename-argentum/src/tinfo"
	"github.com/aglotoff/codename-argentum/src/vm"
)

func TestPipeWriteThenRead(t *testing.T) {
	initPhys(t)
	bindCaller(t)

	rfd, wfd, err := MakePipe()
	require.Zero(t, err)

	wbuf := &vm.Fakeubuf_t{}
	wbuf.Fake_init([]byte("hello"))
	n, err := wfd.Fops.Write(wbuf)
	require.Zero(t, err)
	assert.Equal(t, 5, n)

	require.Zero(t, wfd.Fops.Close())

	rbuf := &vm.Fakeubuf_t{}
	data := make([]byte, 16)
	rbuf.Fake_init(data)
	n, err = rfd.Fops.Read(rbuf)
	require.Zero(t, err)
	assert.Equal(t, "hello", string(data[:n]))

	n, err = rfd.Fops.Read(rbuf)
	require.Zero(t, err)
	assert.Equal(t, 0, n, "read after writer close and drained buffer must report EOF")
}

func TestPipeWriteAfterReaderCloseReturnsEPIPE(t *testing.T) {
	initPhys(t)
	bindCaller(t)

	rfd, wfd, err := MakePipe()
	require.Zero(t, err)
	require.Zero(t, rfd.Fops.Close())

	wbuf := &vm.Fakeubuf_t{}
	wbuf.Fake_init([]byte("x"))
	_, err = wfd.Fops.Write(wbuf)
	assert.Equal(t, -defs.EPIPE, err)
}

func TestPipeReadBlocksUntilWriterProduces(t *testing.T) {
	initPhys(t)
	bindCaller(t)

	rfd, wfd, err := MakePipe()
	require.Zero(t, err)
	defer wfd.Fops.Close()

	done := make(chan string)
	go func() {
		tinfo.SetCurrent(&tinfo.Tnote_t{Alive: true})
		defer tinfo.ClearCurrent()
		data := make([]byte, 16)
		rbuf := &vm.Fakeubuf_t{}
		rbuf.Fake_init(data)
		n, e := rfd.Fops.Read(rbuf)
		if e != 0 {
			close(done)
			return
		}
		done <- string(data[:n])
	}()

	select {
	case <-done:
		t.Fatal("Read returned before any data was written")
	case <-time.After(20 * time.Millisecond):
	}

	wbuf := &vm.Fakeubuf_t{}
	wbuf.Fake_init([]byte("woke"))
	_, err = wfd.Fops.Write(wbuf)
	require.Zero(t, err)

	select {
	case got := <-done:
		assert.Equal(t, "woke", got)
	case <-time.After(time.Second):
		t.Fatal("Read did not return after Write")
	}
}
