package static

import (
	"io/fs"
	"strings"
	"testing"
)

func TestFS_ContainsStylesheet(t *testing.T) {
	data, err := fs.ReadFile(FS(), "css/panel.css")
	if err != nil {
		t.Fatalf("css/panel.css не встроен: %v", err)
	}
	if !strings.Contains(string(data), ".badge-green") {
		t.Error("в таблице стилей нет классов бейджей журнала")
	}
}

func TestFileSystem_Open(t *testing.T) {
	f, err := FileSystem().Open("/css/panel.css")
	if err != nil {
		t.Fatalf("Open() вернул ошибку: %v", err)
	}
	_ = f.Close()
}
