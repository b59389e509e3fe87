package policy

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
	"github.com/zeromicro/go-zero/core/logx"
	"gopkg.in/yaml.v2"
)

var ErrRejected = errors.New("rejected by co-sign policy")

// Policy decides which messages the service is willing to co-sign.
// Empty lists place no restriction.
type Policy struct {
	AllowedPrograms []string `yaml:"allowed_programs"`
	BlockedPayers   []string `yaml:"blocked_payers"`
	MaxInstructions int      `yaml:"max_instructions"`
	MaxSigners      int      `yaml:"max_signers"`
}

func Parse(data []byte) (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, errors.Wrap(err, "parse policy")
	}
	for _, key := range append(append([]string{}, p.AllowedPrograms...), p.BlockedPayers...) {
		if _, err := solana.PublicKeyFromBase58(key); err != nil {
			return nil, errors.Wrapf(err, "policy key %q", key)
		}
	}
	return &p, nil
}

// Check returns ErrRejected when msg breaks any rule.
func (p *Policy) Check(msg *solana.Message) error {
	if p == nil {
		return nil
	}
	if len(msg.AccountKeys) == 0 {
		return errors.Wrap(ErrRejected, "message has no account keys")
	}
	if p.MaxInstructions > 0 && len(msg.Instructions) > p.MaxInstructions {
		return errors.Wrapf(ErrRejected, "%d instructions, at most %d allowed", len(msg.Instructions), p.MaxInstructions)
	}
	if p.MaxSigners > 0 && int(msg.Header.NumRequiredSignatures) > p.MaxSigners {
		return errors.Wrapf(ErrRejected, "%d signers, at most %d allowed", msg.Header.NumRequiredSignatures, p.MaxSigners)
	}

	payer := msg.AccountKeys[0].String()
	for _, blocked := range p.BlockedPayers {
		if blocked == payer {
			return errors.Wrapf(ErrRejected, "payer %s is blocked", payer)
		}
	}

	if len(p.AllowedPrograms) == 0 {
		return nil
	}
	allowed := make(map[string]struct{}, len(p.AllowedPrograms))
	for _, program := range p.AllowedPrograms {
		allowed[program] = struct{}{}
	}
	for i, ix := range msg.Instructions {
		if int(ix.ProgramIDIndex) >= len(msg.AccountKeys) {
			return errors.Wrapf(ErrRejected, "instruction %d program index out of range", i)
		}
		program := msg.AccountKeys[ix.ProgramIDIndex].String()
		if _, ok := allowed[program]; !ok {
			return errors.Wrapf(ErrRejected, "instruction %d calls %s", i, program)
		}
	}
	return nil
}

// Store holds the current policy and reloads it when the file changes.
type Store struct {
	path string

	mu          sync.RWMutex
	policy      *Policy
	lastModTime time.Time
}

// NewStore loads path. An empty path yields a store with no restrictions.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path}
	if path == "" {
		return s, nil
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Current() *Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policy
}

func (s *Store) Check(msg *solana.Message) error {
	return s.Current().Check(msg)
}

// Reload re-reads the policy file if it changed since the last load. A file
// that fails to parse leaves the current policy in place.
func (s *Store) Reload() error {
	info, err := os.Stat(s.path)
	if err != nil {
		return errors.Wrap(err, "stat policy")
	}

	s.mu.RLock()
	unchanged := s.policy != nil && !info.ModTime().After(s.lastModTime)
	s.mu.RUnlock()
	if unchanged {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return errors.Wrap(err, "read policy")
	}
	p, err := Parse(data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.policy = p
	s.lastModTime = info.ModTime()
	s.mu.Unlock()
	return nil
}

// Watch reloads the policy on every write to its file until ctx is done.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		<-ctx.Done()
		return nil
	}
	absPath, err := filepath.Abs(s.path)
	if err != nil {
		return errors.Wrap(err, "resolve policy path")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create watcher")
	}
	defer watcher.Close()

	// Editors replace files by rename, so watch the directory.
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		return errors.Wrap(err, "watch policy dir")
	}
	logx.Infof("watching policy file %s", absPath)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != filepath.Base(absPath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Rename|fsnotify.Create) == 0 {
				continue
			}
			if _, err := os.Stat(absPath); os.IsNotExist(err) {
				continue
			}
			if err := s.Reload(); err != nil {
				logx.Errorf("reload policy: %v", err)
				continue
			}
			logx.Infof("policy reloaded after %s", event.Op)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logx.Errorf("policy watcher: %v", err)
		}
	}
}
