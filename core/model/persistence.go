package model

import (
	"encoding/gob"
	"io"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
)

// SaveAtomic は値をgobでエンコードし、同じディレクトリの一時ファイルに書き込んでから
// rename で filename に置き換える。読み手は古い内容か新しい内容のどちらかだけを見る。
//
// 使用例:
//
//	err := model.SaveAtomic("./models/demand_model.gob", artifact)
func SaveAtomic(filename string, v interface{}) (err error) {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create directory %s", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(filename)+".tmp-*")
	if err != nil {
		return errors.Wrap(err, "failed to create temp file")
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if err = SaveToWriter(v, tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "failed to sync temp file")
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close temp file")
	}
	if err = os.Rename(tmpName, filename); err != nil {
		return errors.Wrapf(err, "failed to replace %s", filename)
	}
	return nil
}

// Load はファイルからgobで値を読み込む。ファイルが存在しない場合のエラーは
// os.ErrNotExist と一致する。
func Load(filename string, v interface{}) error {
	file, err := os.Open(filename)
	if err != nil {
		return errors.Wrap(err, "failed to open file")
	}
	defer file.Close()
	return LoadFromReader(v, file)
}

// SaveToWriter は値をio.Writerにgobで書き込む
func SaveToWriter(v interface{}, w io.Writer) error {
	if err := gob.NewEncoder(w).Encode(v); err != nil {
		return errors.Wrap(err, "failed to encode model")
	}
	return nil
}

// LoadFromReader はio.Readerからgobで値を読み込む
func LoadFromReader(v interface{}, r io.Reader) error {
	if err := gob.NewDecoder(r).Decode(v); err != nil {
		return errors.Wrap(err, "failed to decode model")
	}
	return nil
}
