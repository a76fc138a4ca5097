package console

func resetGlobalLogger() {
	initMu.Lock()
	defer initMu.Unlock()
	globalLocked.Store(nil)
	globalLog.Store(nil)
}
