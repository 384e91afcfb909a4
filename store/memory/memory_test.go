package memory_test

import (
	"testing"

	"github.com/warp/recognition-engine/store/memory"
	"github.com/warp/recognition-engine/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Backend {
		return memory.New()
	})
}
