package mqttc

import (
	"testing"

	"github.com/mcornejo/mqttc/testutils"
)

func Test_pidSequence_starts_at_1(t *testing.T) {
	var pids pidSequence
	testutils.CheckEqual(uint16(1), pids.next(), t)
	testutils.CheckEqual(uint16(2), pids.next(), t)
}

func Test_pidSequence_wraps_and_skips_zero(t *testing.T) {
	pids := pidSequence{last: 0xFFFE}
	testutils.CheckEqual(uint16(0xFFFF), pids.next(), t)
	testutils.CheckEqual(uint16(1), pids.next(), t)
}

func Test_pidSequence_never_returns_zero(t *testing.T) {
	var pids pidSequence
	for i := 0; i < 0x10001; i++ {
		if pids.next() == 0 {
			t.Fatalf("packet id 0 issued after %d allocations", i)
		}
	}
}
