package strata

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStrataError_Error(t *testing.T) {
	err := NewTableBuildError("wiki_union", NewDuplicateMetricError("wiki_union", []string{"B"}))

	assert.Equal(t,
		"[configuration:TABLE_BUILD_FAILED] table 'wiki_union': failed to build physical table: "+
			"[configuration:DUPLICATE_METRIC] table 'wiki_union': metrics provided by more than one dependent table: B",
		err.Error())
	assert.True(t, HasErrorCode(err, ErrCodeDuplicateMetric))
	assert.True(t, HasErrorCode(err, ErrCodeTableBuildFailed))
	assert.False(t, HasErrorCode(err, ErrCodeMissingMetric))
	assert.Equal(t, ErrCodeTableBuildFailed, ErrorCode(err))
}

func TestErrorClassification(t *testing.T) {
	wrapped := fmt.Errorf("loading group: %w", NewUnresolvedDependencyError("X", []string{"X", "Y", "X"}))
	assert.True(t, IsConfigurationError(wrapped))
	assert.False(t, IsRequestError(wrapped))
	assert.Contains(t, wrapped.Error(), "X -> Y -> X")

	assert.True(t, IsRequestError(NewFieldNotFoundError("x")))
	assert.False(t, IsConfigurationError(errors.New("plain")))
	assert.Empty(t, ErrorCode(errors.New("plain")))
}

func TestStrataError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewMetadataUnavailableError("wiki", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "wiki", err.Table)
}
