package activity

import "github.com/nomis52/scenecap/scene"

// Results returns the activity as a single record, or an empty slice if there is none.
func (p *Plugin) Results() []map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.activity == nil {
		return []map[string]any{}
	}
	return []map[string]any{p.activity.Record()}
}

// Summary returns the condensed activity record, or nil if there is none.
func (p *Plugin) Summary() map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.activity == nil {
		return nil
	}
	return p.activity.Summary().Record()
}

// Activity returns a copy of the reduced activity.
func (p *Plugin) Activity() (scene.Activity, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.activity == nil {
		return scene.Activity{}, false
	}
	return p.activity.Clone(), true
}

// SceneSummary returns the condensed activity, or nil if there is none.
func (p *Plugin) SceneSummary() *scene.Summary {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.activity == nil {
		return nil
	}
	s := p.activity.Summary()
	return &s
}

// State returns a copy of everything recorded so far.
func (p *Plugin) State() scene.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Clone()
}

// Lifecycle returns the current lifecycle stage.
func (p *Plugin) Lifecycle() Lifecycle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lifecycle
}

// Capability returns whether a captioner was acquired.
func (p *Plugin) Capability() Capability {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capability
}

// Err returns the error that stopped the video under FailVideo, or nil.
func (p *Plugin) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failed
}
