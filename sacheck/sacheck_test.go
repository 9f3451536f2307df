package sacheck

import (
	"context"
	"testing"

	"github.com/distsa/distsa/comm"
	"github.com/distsa/distsa/container"
	"github.com/distsa/distsa/index"
	"github.com/stretchr/testify/assert"
	"golang.org/x/sync/errgroup"
)

// runCheck splits text and sa evenly across pes PEs (mirroring how
// internal/cli hands sacheck its slices) and runs Check concurrently,
// returning every PE's own verdict in rank order.
func runCheck(t *testing.T, text []byte, sa []int64, pes int) []error {
	t.Helper()
	comms := comm.NewInProcGroup(pes)

	textTotal := int64(len(text))
	textSliceSize := textTotal / int64(pes)
	saSliceSize := int64(len(sa)) / int64(pes)

	g, _ := errgroup.WithContext(context.Background())
	errs := make([]error, pes)
	for _, c := range comms {
		c := c
		g.Go(func() error {
			r := c.Rank()
			tStart := int64(r) * textSliceSize
			tEnd := tStart + textSliceSize
			if r == pes-1 {
				tEnd = textTotal
			}
			dist := container.DistributedString{
				Local:  append([]byte(nil), text[tStart:tEnd]...),
				Offset: index.From(uint64(tStart)),
				Total:  index.From(uint64(textTotal)),
			}

			saStart := int64(r) * saSliceSize
			saEnd := saStart + saSliceSize
			if r == pes-1 {
				saEnd = int64(len(sa))
			}
			localSA := make([]index.I, saEnd-saStart)
			for i := range localSA {
				localSA[i] = index.From(uint64(sa[saStart+int64(i)]))
			}
			offset, err := c.ExPrefixSum(context.Background(), int64(len(localSA)))
			if err != nil {
				return err
			}
			errs[r] = Check(context.Background(), c, localSA, index.From(uint64(offset)), dist)
			return nil
		})
	}
	assert.NoError(t, g.Wait())
	return errs
}

func TestCheckAcceptsCorrectSA(t *testing.T) {
	text := []byte("banana")
	sa := []int64{5, 3, 1, 0, 4, 2}
	for _, err := range runCheck(t, text, sa, 2) {
		assert.NoError(t, err)
	}
	for _, err := range runCheck(t, text, sa, 1) {
		assert.NoError(t, err)
	}
}

func TestCheckRejectsNonPermutation(t *testing.T) {
	text := []byte("banana")
	sa := []int64{5, 3, 1, 0, 4, 4} // 4 appears twice, 2 is missing
	errs := runCheck(t, text, sa, 2)

	foundSpecific := false
	for _, err := range errs {
		assert.Error(t, err)
		if v, ok := err.(*Violation); ok && v.Kind == "not-a-permutation" {
			foundSpecific = true
		}
	}
	assert.True(t, foundSpecific, "expected at least one PE to report the specific not-a-permutation violation")
}

func TestCheckRejectsWrongOrder(t *testing.T) {
	text := []byte("banana")
	sa := []int64{3, 5, 1, 0, 4, 2} // first two entries swapped
	errs := runCheck(t, text, sa, 2)
	for _, err := range errs {
		assert.Error(t, err)
	}
}
