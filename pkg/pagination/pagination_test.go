package pagination

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func parseURL(target string) Params {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", target, nil)
	return Parse(c)
}

func TestParse(t *testing.T) {
	assert.Equal(t, Params{Page: 1, Limit: 20, Offset: 0}, parseURL("/x"))
	assert.Equal(t, Params{Page: 3, Limit: 10, Offset: 20}, parseURL("/x?page=3&limit=10"))
	assert.Equal(t, Params{Page: 1, Limit: 100, Offset: 0}, parseURL("/x?page=-2&limit=500"))
	assert.Equal(t, Params{Page: 1, Limit: 20, Offset: 0}, parseURL("/x?page=abc&limit=0"))
}

func TestResult(t *testing.T) {
	p := Params{Page: 2, Limit: 10, Offset: 10}
	page := p.Result([]int{1}, 25)
	assert.Equal(t, 3, page.TotalPages)
	assert.True(t, page.HasNext)

	last := Params{Page: 3, Limit: 10, Offset: 20}.Result(nil, 25)
	assert.False(t, last.HasNext)

	empty := p.Result(nil, 0)
	assert.Equal(t, 0, empty.TotalPages)
	assert.False(t, empty.HasNext)
}
