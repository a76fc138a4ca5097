package keyboard

import "sync"

func resetGlobalQueue() {
	global.Store(nil)
	initOnce = sync.Once{}
}
