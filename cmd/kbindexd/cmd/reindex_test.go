package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdminURL(t *testing.T) {
	// Given/When/Then: bare ports are resolved against localhost
	assert.Equal(t, "http://localhost:17030", adminURL(":17030"))
	assert.Equal(t, "http://indexer.internal:17030", adminURL("indexer.internal:17030"))
	assert.Equal(t, "http://127.0.0.1:9999", adminURL("127.0.0.1:9999"))
}
