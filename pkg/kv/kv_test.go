package kv

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubmissionQueueKeyRoundTrip(t *testing.T) {
	key := SubmissionQueueKey("b5f1c9e2-0000-4000-8000-000000000001")
	assert.Equal(t, "contest:submissions:b5f1c9e2-0000-4000-8000-000000000001", key)
	assert.Equal(t, "b5f1c9e2-0000-4000-8000-000000000001", ContestIDFromQueueKey(key))
}

func TestContestIDFromQueueKeyRejectsOtherKeys(t *testing.T) {
	assert.Empty(t, ContestIDFromQueueKey("contest:grading"))
	assert.Empty(t, ContestIDFromQueueKey("active_session:abc"))
	assert.Empty(t, ContestIDFromQueueKey(""))
}

func TestSessionKeys(t *testing.T) {
	assert.Equal(t, "active_session:u1", ActiveSessionKey("u1"))
	assert.Equal(t, "force_logout:s1", ForceLogoutKey("s1"))
}
