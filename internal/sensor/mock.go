package sensor

// MockDriver is a scripted Driver for tests and for running the daemon
// without hardware attached. Init and read outcomes are consumed in
// order; when a script runs out the last entry repeats.
type MockDriver struct {
	InitStatuses []Status
	ReadResults  []ReadResult
	SDALevel     bool
	SCLLevel     bool
	BusResult    int

	InitCalls int
	ReadCalls int
}

type ReadResult struct {
	Sample Sample
	Status Status
}

func (m *MockDriver) Initialize(_ PortConfig) Status {
	status := scripted(m.InitStatuses, m.InitCalls, StatusOK)
	m.InitCalls++

	return status
}

func (m *MockDriver) ReadSample() (Sample, Status) {
	result := scripted(m.ReadResults, m.ReadCalls, ReadResult{Status: StatusOK})
	m.ReadCalls++

	return result.Sample, result.Status
}

func (m *MockDriver) LastBusResult() int {
	return m.BusResult
}

func (m *MockDriver) PinLevels() (bool, bool) {
	return m.SDALevel, m.SCLLevel
}

func scripted[T any](script []T, call int, fallback T) T {
	if len(script) == 0 {
		return fallback
	}
	if call >= len(script) {
		return script[len(script)-1]
	}

	return script[call]
}
