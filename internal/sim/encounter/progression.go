package encounter

import "time"

// Tick advances the run by dt. Events raised during the step are delivered
// after the state transition has completed.
func (e *Encounter) Tick(dt time.Duration) {
	if dt < 0 {
		dt = 0
	}
	e.tick++
	e.inTick = true
	e.step(dt)
	e.inTick = false
	e.flush()
}

func (e *Encounter) step(dt time.Duration) {
	switch e.state {
	case StateWaveInProgress:
		e.evaluateCompletion()
	case StateTransitioning:
		if !e.transitionPending {
			e.state = StateWaveComplete
			return
		}
		e.transitionRemaining -= dt
		if e.transitionRemaining <= 0 {
			next := e.currentWave + 1
			if !e.spawnWave(next) {
				// Layout vanished under us; park until a manual spawn.
				e.cancelTransition()
				e.state = StateWaveComplete
			}
		}
	}
}

func (e *Encounter) evaluateCompletion() {
	if !e.IsWaveComplete() || e.waveCompleteEmitted {
		return
	}
	e.waveCompleteEmitted = true
	e.emit(Event{Kind: EventWaveCompleted, Wave: e.currentWave})
	e.log.Printf("wave %d complete run=%s", e.currentWave, e.runID)

	switch {
	case e.currentWave >= e.totalWaves:
		e.runCompleted = true
		if !e.arenaCompleteEmitted {
			e.arenaCompleteEmitted = true
			e.emit(Event{Kind: EventArenaCompleted, Wave: e.currentWave})
			e.log.Printf("arena complete run=%s waves=%d", e.runID, e.currentWave)
		}
		e.state = StateRunComplete
	case e.autoProgress:
		e.beginTransition()
	default:
		e.state = StateWaveComplete
	}
}

func (e *Encounter) beginTransition() {
	e.transitionPending = true
	e.transitionRemaining = e.transitionDelay
	if e.transitionRemaining < 0 {
		e.transitionRemaining = 0
	}
	e.state = StateTransitioning
}

func (e *Encounter) cancelTransition() {
	e.transitionPending = false
	e.transitionRemaining = 0
}
