package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/mohammed-a-khan/ptf/packages/core/results"
)

// Fake is an in-memory Backend used by dry runs and by the runner and
// orchestrator tests. It records the calls the core makes so tests can
// assert on session lifecycle ordering.
type Fake struct {
	mu    sync.Mutex
	calls []string

	launched   bool
	hasContext bool

	// LaunchErr, when set, makes Launch fail; exercises the infrastructure
	// failure path.
	LaunchErr error

	namer *Namer
	arts  results.Artifacts

	pages map[string]string // selector -> text for the fake page
}

// NewFake returns a fake backend writing artifact names under dir.
func NewFake(dir string, workerID int) *Fake {
	return &Fake{
		namer: NewNamer(dir, workerID),
		pages: map[string]string{},
	}
}

func (f *Fake) record(call string) {
	f.calls = append(f.calls, call)
}

// Calls returns the recorded call sequence.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// Launched reports whether Launch succeeded at least once.
func (f *Fake) Launched() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.launched
}

func (f *Fake) Launch(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("launch")
	if f.LaunchErr != nil {
		return f.LaunchErr
	}
	f.launched = true
	return nil
}

func (f *Fake) GetPage() (Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.launched {
		return nil, fmt.Errorf("browser not launched")
	}
	f.record("getPage")
	f.hasContext = true
	return &fakePage{fake: f}, nil
}

func (f *Fake) GetContext() (Context, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.launched {
		return nil, fmt.Errorf("browser not launched")
	}
	f.record("getContext")
	f.hasContext = true
	return f, nil
}

func (f *Fake) ClearCookies() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("clearCookies")
	return nil
}

func (f *Fake) ClearPermissions() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("clearPermissions")
	return nil
}

func (f *Fake) Screenshot(testName string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("screenshot:" + testName)
	path := f.namer.Name(testName, ".png")
	f.arts.Screenshots = append(f.arts.Screenshots, path)
	return path, nil
}

func (f *Fake) SessionArtifacts() results.Artifacts {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.arts
}

func (f *Fake) ClearState() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("clearState")
	return nil
}

func (f *Fake) CloseContext(failed bool) (results.Artifacts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(fmt.Sprintf("closeContext:failed=%v", failed))
	arts := f.arts
	f.arts = results.Artifacts{}
	f.hasContext = false
	return arts, nil
}

func (f *Fake) Close(failed bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(fmt.Sprintf("close:failed=%v", failed))
	f.hasContext = false
	f.launched = false
	return nil
}

func (f *Fake) CloseAll(failed bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(fmt.Sprintf("closeAll:failed=%v", failed))
	f.hasContext = false
	f.launched = false
	return nil
}

// SetText seeds the fake page's selector-to-text map.
func (f *Fake) SetText(selector, text string) {
	f.mu.Lock()
	f.pages[selector] = text
	f.mu.Unlock()
}

type fakePage struct {
	fake *Fake
	url  string
}

func (p *fakePage) Goto(url string) error {
	p.fake.mu.Lock()
	defer p.fake.mu.Unlock()
	p.fake.record("goto:" + url)
	p.url = url
	return nil
}

func (p *fakePage) Click(selector string) error {
	p.fake.mu.Lock()
	defer p.fake.mu.Unlock()
	p.fake.record("click:" + selector)
	return nil
}

func (p *fakePage) Fill(selector, value string) error {
	p.fake.mu.Lock()
	defer p.fake.mu.Unlock()
	p.fake.record("fill:" + selector)
	return nil
}

func (p *fakePage) Text(selector string) (string, error) {
	p.fake.mu.Lock()
	defer p.fake.mu.Unlock()
	if text, ok := p.fake.pages[selector]; ok {
		return text, nil
	}
	return "", fmt.Errorf("selector %q not found", selector)
}

func (p *fakePage) Title() (string, error) {
	return "fake", nil
}

func (p *fakePage) URL() string {
	return p.url
}

func (p *fakePage) WaitFor(selector string) error {
	p.fake.mu.Lock()
	defer p.fake.mu.Unlock()
	p.fake.record("waitFor:" + selector)
	if _, ok := p.fake.pages[selector]; !ok {
		return fmt.Errorf("selector %q never appeared", selector)
	}
	return nil
}

func (p *fakePage) Evaluate(expression string) (any, error) {
	return nil, nil
}
