package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChain_PushPop(t *testing.T) {
	var c chain

	c.push(dirID("a"))
	assert.Equal(t, 1, c.depth())
	c.push(dirID("b"))
	assert.Equal(t, 2, c.depth())

	c.pop()
	assert.Equal(t, 1, c.depth())
	c.push(dirID("c"))
	assert.Equal(t, 2, c.depth())
	assert.Equal(t, []string{"directory[a]", "directory[c]"}, func() []string {
		var out []string
		for _, id := range c.path() {
			out = append(out, id.String())
		}
		return out
	}())
}

func TestChain_PopEmpty(t *testing.T) {
	var c chain
	c.pop()
	assert.Zero(t, c.depth())
}

func TestChain_PathIsCopy(t *testing.T) {
	var c chain
	c.push(dirID("a"))

	p := c.path()
	p[0] = dirID("mutated")

	assert.Equal(t, dirID("a"), c.path()[0])
}
