package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusValid(t *testing.T) {
	for _, s := range Statuses() {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, Status("refunded").Valid())
	assert.False(t, Status("").Valid())
	assert.False(t, Status("Pending").Valid())
}

func TestTopicsAreDistinct(t *testing.T) {
	topics := Topics()
	assert.Len(t, topics, 3)
	assert.ElementsMatch(t, []string{TopicOrderPlaced, TopicBookingPlaced, TopicOrderStatusChanged}, topics)
}
