package transport

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"

	"solana-cosign/internal/cosign"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/zeromicro/go-zero/core/logx"
)

const (
	partialExt  = ".partial"
	signedExt   = ".signed"
	rejectedExt = ".rejected"
)

var ErrRejected = errors.New("co-signer rejected the transaction")

// FileExchange passes transactions through a shared directory, one base64
// file per transaction named after its message digest. The requesting side
// writes <id>.partial and waits for <id>.signed, or for <id>.rejected holding
// the reason the serving side refused it.
type FileExchange struct {
	dir string
}

func NewFileExchange(dir string) *FileExchange {
	return &FileExchange{dir: dir}
}

func (f *FileExchange) path(id, ext string) string {
	return filepath.Join(f.dir, id+ext)
}

func (f *FileExchange) Cosign(ctx context.Context, partial []byte) ([]byte, error) {
	tx, err := cosign.Deserialize(partial)
	if err != nil {
		return nil, err
	}
	id, err := cosign.MessageDigest(&tx.Message)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrapf(cosign.ErrTransport, "create watcher: %v", err)
	}
	defer watcher.Close()
	if err := watcher.Add(f.dir); err != nil {
		return nil, errors.Wrapf(cosign.ErrTransport, "watch %s: %v", f.dir, err)
	}

	if err := writeAtomic(f.path(id, partialExt), partial); err != nil {
		return nil, err
	}
	logx.WithContext(ctx).Infof("✅ Partial transaction written to %s", f.path(id, partialExt))

	signedPath := f.path(id, signedExt)
	rejectedPath := f.path(id, rejectedExt)
	if raw, err := readEncoded(signedPath); err == nil {
		return f.finish(id, raw)
	}
	if _, err := os.Stat(rejectedPath); err == nil {
		return nil, f.rejected(id)
	}
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil, errors.Wrap(cosign.ErrTransport, "watcher closed")
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			name := filepath.Clean(event.Name)
			if name == rejectedPath {
				return nil, f.rejected(id)
			}
			if name != signedPath {
				continue
			}
			raw, err := readEncoded(signedPath)
			if err != nil {
				logx.WithContext(ctx).Errorf("read %s: %v", signedPath, err)
				continue
			}
			return f.finish(id, raw)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil, errors.Wrap(cosign.ErrTransport, "watcher closed")
			}
			logx.WithContext(ctx).Errorf("exchange watcher: %v", err)
		}
	}
}

func (f *FileExchange) finish(id string, raw []byte) ([]byte, error) {
	_ = os.Remove(f.path(id, partialExt))
	_ = os.Remove(f.path(id, signedExt))
	return raw, nil
}

func (f *FileExchange) rejected(id string) error {
	reason, err := os.ReadFile(f.path(id, rejectedExt))
	if err != nil {
		reason = []byte("no reason given")
	}
	_ = os.Remove(f.path(id, partialExt))
	_ = os.Remove(f.path(id, rejectedExt))
	return errors.Wrapf(ErrRejected, "%s: %s", id, strings.TrimSpace(string(reason)))
}

// Serve answers every partial transaction dropped in the directory with c
// until ctx is done. Files already present when it starts are handled first.
func (f *FileExchange) Serve(ctx context.Context, c Cosigner) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrapf(cosign.ErrTransport, "create watcher: %v", err)
	}
	defer watcher.Close()
	if err := watcher.Add(f.dir); err != nil {
		return errors.Wrapf(cosign.ErrTransport, "watch %s: %v", f.dir, err)
	}

	existing, err := filepath.Glob(filepath.Join(f.dir, "*"+partialExt))
	if err != nil {
		return errors.Wrap(err, "list partial transactions")
	}
	for _, name := range existing {
		f.answer(ctx, c, name)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(event.Name, partialExt) || event.Op&(fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			f.answer(ctx, c, event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logx.Errorf("exchange watcher: %v", err)
		}
	}
}

func (f *FileExchange) answer(ctx context.Context, c Cosigner, name string) {
	logger := logx.WithContext(ctx)
	id := strings.TrimSuffix(filepath.Base(name), partialExt)
	for _, ext := range []string{signedExt, rejectedExt} {
		if _, err := os.Stat(f.path(id, ext)); err == nil {
			return
		}
	}
	raw, err := readEncoded(name)
	if err != nil {
		if !os.IsNotExist(errors.Cause(err)) {
			logger.Errorf("❌ read %s: %v", name, err)
		}
		return
	}
	signed, err := c.Cosign(ctx, raw)
	if err != nil {
		logger.Errorf("❌ co-sign %s: %v", id, err)
		if err := writeFileAtomic(f.path(id, rejectedExt), []byte(err.Error())); err != nil {
			logger.Errorf("❌ write %s: %v", id, err)
		}
		return
	}
	if err := writeAtomic(f.path(id, signedExt), signed); err != nil {
		logger.Errorf("❌ write %s: %v", id, err)
		return
	}
	logger.Infof("✅ Answered %s", id)
}

func readEncoded(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, errors.Wrapf(cosign.ErrMalformedTransaction, "%s: %v", path, err)
	}
	return raw, nil
}

// writeAtomic writes base64 of raw next to path and renames it into place so
// readers never see a partial file.
func writeAtomic(path string, raw []byte) error {
	return writeFileAtomic(path, []byte(base64.StdEncoding.EncodeToString(raw)))
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errors.Wrapf(cosign.ErrTransport, "write %s: %v", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrapf(cosign.ErrTransport, "rename %s: %v", tmp, err)
	}
	return nil
}
