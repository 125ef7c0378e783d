package report

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kamar-Folarin/repo-provisioner/internal/models"
)

func TestReport(t *testing.T) {
	t.Run("clean run is built", func(t *testing.T) {
		r := New(nil)
		r.Created(KindCommit)
		r.Created(KindCommit)
		assert.Equal(t, 2, r.Count(KindCommit))
		assert.Equal(t, models.StateBuilt, r.State())
		assert.Equal(t, map[string]int{"commit": 2}, r.CreatedCounts())
	})

	t.Run("skipped entity makes run partial", func(t *testing.T) {
		r := New(nil)
		err := r.Fail(KindBlob, "src/app.ts", errors.New("502 bad gateway"))
		assert.NoError(t, err)
		assert.Equal(t, models.StatePartiallyBuilt, r.State())

		omissions := r.Omissions()
		require.Len(t, omissions, 1)
		assert.Equal(t, "blob", omissions[0].Kind)
		assert.Equal(t, "src/app.ts", omissions[0].Entity)
	})

	t.Run("abort kinds return an abort error", func(t *testing.T) {
		r := New(nil)
		cause := errors.New("422 reference update failed")
		err := r.Fail(KindRef, "heads/main", cause)

		var abort *AbortError
		require.ErrorAs(t, err, &abort)
		assert.Equal(t, KindRef, abort.Kind)
		assert.ErrorIs(t, err, cause)
	})

	t.Run("custom policy", func(t *testing.T) {
		r := New(Policy{KindCommit: Abort})
		assert.Error(t, r.Fail(KindCommit, "0", errors.New("boom")))
		assert.NoError(t, r.Fail(KindRef, "heads/main", errors.New("boom")))
	})
}
