package call

import (
	"os"
	"testing"

	"friendfinder-backend/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.InitDefault()
	os.Exit(m.Run())
}
