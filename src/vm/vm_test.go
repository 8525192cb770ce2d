package vm

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aglotoff/codename-argentum/src/defs"
	"github.com/aglotoff/codename-argentum/src/mem"
)

var physInitOnce sync.Once

// initPhys brings up mem.Physmem once for the whole test binary: every
// Vm_t in these tests allocates real pages from it via NewAddressSpace/
// Page_insert, the same global physical allocator every address space
// in the kernel shares.
func initPhys(t *testing.T) {
	t.Helper()
	physInitOnce.Do(func() {
		mem.Phys_init()
	})
}

func TestAnonRegionZeroFillOnDemand(t *testing.T) {
	initPhys(t)

	as, err := NewAddressSpace()
	require.Zero(t, err)
	defer as.Destroy()

	const start = 0x40000000
	as.Lock_pmap()
	as.Vmadd_anon(start, mem.PGSIZE, mem.Pa_t(PTE_U|PTE_W))
	as.Unlock_pmap()

	v, err := as.Userreadn(start, 8)
	require.Zero(t, err)
	require.Equal(t, 0, v)

	err = as.Userwriten(start, 8, 1234)
	require.Zero(t, err)

	v, err = as.Userreadn(start, 8)
	require.Zero(t, err)
	require.Equal(t, 1234, v)
}

func TestAnonRegionGuardFaults(t *testing.T) {
	initPhys(t)

	as, err := NewAddressSpace()
	require.Zero(t, err)
	defer as.Destroy()

	const start = 0x50000000
	as.Lock_pmap()
	as.Vmadd_anon(start, mem.PGSIZE, 0)
	as.Unlock_pmap()

	_, err = as.Userreadn(start, 8)
	require.Equal(t, -defs.EFAULT, err)
}

func TestForkCopyOnWrite(t *testing.T) {
	initPhys(t)

	parent, err := NewAddressSpace()
	require.Zero(t, err)
	defer parent.Destroy()

	const start = 0x60000000
	parent.Lock_pmap()
	parent.Vmadd_anon(start, mem.PGSIZE, mem.Pa_t(PTE_U|PTE_W))
	parent.Unlock_pmap()

	require.Zero(t, parent.Userwriten(start, 8, 1234))

	child, err := parent.Fork()
	require.Zero(t, err)
	defer child.Destroy()

	v, err := child.Userreadn(start, 8)
	require.Zero(t, err)
	require.Equal(t, 1234, v)

	require.Zero(t, parent.Userwriten(start, 8, 9999))

	pv, err := parent.Userreadn(start, 8)
	require.Zero(t, err)
	require.Equal(t, 9999, pv)

	cv, err := child.Userreadn(start, 8)
	require.Zero(t, err)
	require.Equal(t, 1234, cv, "child's copy-on-write page must not see the parent's post-fork write")
}
