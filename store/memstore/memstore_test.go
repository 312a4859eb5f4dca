package memstore_test

import (
	"testing"

	"github.com/becomeliminal/nim-assistant/store/memstore"
	"github.com/becomeliminal/nim-assistant/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, memstore.New())
}
