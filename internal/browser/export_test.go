package browser

// Fixtures shared with the external browser_test package.
type TestFixture = testFixture

var (
	NewTestFixture = newTestFixture
	ServeHTML      = serveHTML
)
