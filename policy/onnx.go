package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/rustyeddy/btcpaper/features"
)

var ortInit sync.Once

func initORT() error {
	var err error
	ortInit.Do(func() {
		libPath := "/usr/lib/libonnxruntime.so"
		switch runtime.GOOS {
		case "windows":
			libPath = "onnxruntime.dll"
		case "darwin":
			libPath = "libonnxruntime.dylib"
		}
		if env := os.Getenv("ONNXRUNTIME_LIB"); env != "" {
			libPath = env
		}
		ort.SetSharedLibraryPath(libPath)
		err = ort.InitializeEnvironment()
	})
	return err
}

// ONNXPolicy evaluates an exported actor network. The session holds fixed
// (1, lookback, 6) input and (1, 1) output tensors; Evaluate copies the
// window in, runs the session, and reads the action back out.
//
// Not safe for concurrent Evaluate calls; the Manager serializes access.
type ONNXPolicy struct {
	session  *ort.AdvancedSession
	input    *ort.Tensor[float32]
	output   *ort.Tensor[float32]
	lookback int
}

// LoadONNX opens the model at path for a given lookback.
func LoadONNX(path string, lookback int) (*ONNXPolicy, error) {
	if err := initORT(); err != nil {
		return nil, fmt.Errorf("policy: init onnxruntime: %w", err)
	}

	inShape := ort.NewShape(1, int64(lookback), int64(features.Width))
	input, err := ort.NewTensor(inShape, make([]float32, lookback*features.Width))
	if err != nil {
		return nil, fmt.Errorf("policy: input tensor: %w", err)
	}

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("policy: output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(path,
		[]string{"input"}, []string{"output"},
		[]ort.Value{input}, []ort.Value{output}, nil)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("policy: open session %s: %w", path, err)
	}

	return &ONNXPolicy{session: session, input: input, output: output, lookback: lookback}, nil
}

func (p *ONNXPolicy) Evaluate(w features.Window) (float64, error) {
	if len(w) != p.lookback {
		return 0, fmt.Errorf("policy: window length %d, model expects %d", len(w), p.lookback)
	}
	copy(p.input.GetData(), w.Flat())
	if err := p.session.Run(); err != nil {
		return 0, fmt.Errorf("policy: inference: %w", err)
	}
	return float64(p.output.GetData()[0]), nil
}

func (p *ONNXPolicy) Close() {
	if p.session != nil {
		p.session.Destroy()
	}
	if p.input != nil {
		p.input.Destroy()
	}
	if p.output != nil {
		p.output.Destroy()
	}
}

// Manager is a Provider that serves the newest .onnx artifact from a
// model directory. Reload scans the directory and swaps the session; a
// missing or unreadable model leaves the manager empty, which the engine
// reports as a degraded decision rather than an error.
type Manager struct {
	dir      string
	lookback int

	mu      sync.Mutex
	policy  *ONNXPolicy
	version string
}

func NewManager(dir string, lookback int) *Manager {
	return &Manager{dir: dir, lookback: lookback}
}

// Reload loads the newest model file, replacing any loaded one. Returns
// false when no artifact is present.
func (m *Manager) Reload() (bool, error) {
	path, err := newestONNX(m.dir)
	if err != nil {
		return false, err
	}
	if path == "" {
		return false, nil
	}

	st, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	version := fmt.Sprintf("%s@%d", filepath.Base(path), st.ModTime().Unix())

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.version == version {
		return true, nil
	}

	p, err := LoadONNX(path, m.lookback)
	if err != nil {
		return false, err
	}
	if m.policy != nil {
		m.policy.Close()
	}
	m.policy = p
	m.version = version
	return true, nil
}

func (m *Manager) GetPolicy() (Policy, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.policy == nil {
		return nil, false
	}
	return lockedPolicy{m}, true
}

func (m *Manager) Version() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.version
}

func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.policy != nil {
		m.policy.Close()
		m.policy = nil
		m.version = ""
	}
}

// lockedPolicy serializes Evaluate through the manager mutex so a Reload
// cannot swap the session mid-inference.
type lockedPolicy struct{ m *Manager }

func (l lockedPolicy) Evaluate(w features.Window) (float64, error) {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	if l.m.policy == nil {
		return 0, fmt.Errorf("policy: model unloaded")
	}
	return l.m.policy.Evaluate(w)
}

func newestONNX(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}

	type cand struct {
		path string
		mod  int64
	}
	var cands []cand
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".onnx") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		cands = append(cands, cand{filepath.Join(dir, e.Name()), info.ModTime().UnixNano()})
	}
	if len(cands) == 0 {
		return "", nil
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].mod > cands[j].mod })
	return cands[0].path, nil
}
