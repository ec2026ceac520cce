package invert

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/wraxau/AC-laba3/internal/infra/httpx"
	"github.com/wraxau/AC-laba3/internal/pipeline"
)

func TestProcess_PNGRoundTrip(t *testing.T) {
	root := t.TempDir()
	in := filepath.Join(root, "in")
	out := filepath.Join(root, "out")

	// 纯白 4x4：反色后应为纯黑。
	src := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			src.Set(x, y, color.RGBA{255, 255, 255, 255})
		}
	}
	writePNG(t, filepath.Join(in, "white.png"), src)

	outPath, err := Processor{}.Process(context.Background(), filepath.Join(in, "white.png"), out, "white.png")
	if err != nil {
		t.Fatalf("Process 失败：%v", err)
	}
	if outPath != filepath.Join(out, "inverted_white.png") {
		t.Fatalf("产物路径不符合预期：%q", outPath)
	}

	got := readPNG(t, outPath)
	c := color.RGBAModel.Convert(got.At(2, 2)).(color.RGBA)
	if c.R != 0 || c.G != 0 || c.B != 0 || c.A != 255 {
		t.Fatalf("期望纯黑（alpha 保留），实际 %v", c)
	}
}

func TestProcess_JPEGOutput(t *testing.T) {
	root := t.TempDir()
	in := filepath.Join(root, "in")
	out := filepath.Join(root, "out")

	src := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			src.Set(x, y, color.RGBA{0, 0, 0, 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: 100}); err != nil {
		t.Fatalf("encode jpeg 失败：%v", err)
	}
	writeFile(t, filepath.Join(in, "black.jpg"), buf.Bytes())

	outPath, err := Processor{}.Process(context.Background(), filepath.Join(in, "black.jpg"), out, "black.jpg")
	if err != nil {
		t.Fatalf("Process 失败：%v", err)
	}

	b, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("读取产物失败：%v", err)
	}
	got, err := jpeg.Decode(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("产物应是合法 JPEG：%v", err)
	}
	// 黑反色为白；JPEG 有损，允许一定偏差。
	c := color.RGBAModel.Convert(got.At(4, 4)).(color.RGBA)
	if c.R < 200 || c.G < 200 || c.B < 200 {
		t.Fatalf("期望接近白色，实际 %v", c)
	}
}

func TestProcess_EmptyInputIsInputError(t *testing.T) {
	root := t.TempDir()
	in := filepath.Join(root, "empty.png")
	writeFile(t, in, nil)

	_, err := Processor{}.Process(context.Background(), in, filepath.Join(root, "out"), "empty.png")
	if !pipeline.IsInput(err) {
		t.Fatalf("期望 InputError，实际 %v", err)
	}
}

func TestProcess_CorruptInputIsInputError(t *testing.T) {
	root := t.TempDir()
	in := filepath.Join(root, "broken.jpg")
	writeFile(t, in, []byte("这不是图片"))

	_, err := Processor{}.Process(context.Background(), in, filepath.Join(root, "out"), "broken.jpg")
	if !pipeline.IsInput(err) {
		t.Fatalf("期望 InputError，实际 %v", err)
	}
}

func TestProcess_UnwritableOutDirIsOutputError(t *testing.T) {
	root := t.TempDir()
	src := image.NewRGBA(image.Rect(0, 0, 2, 2))
	writePNG(t, filepath.Join(root, "a.png"), src)

	// outDir 同名路径是文件：MkdirAll 必然失败。
	conflict := filepath.Join(root, "out")
	writeFile(t, conflict, []byte("x"))

	_, err := Processor{}.Process(context.Background(), filepath.Join(root, "a.png"), conflict, "a.png")
	if !pipeline.IsOutput(err) {
		t.Fatalf("期望 OutputError，实际 %v", err)
	}
}

func TestProcess_RemoteLocator(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2, 2))
	src.Set(0, 0, color.RGBA{255, 255, 255, 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		t.Fatalf("encode png 失败：%v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/remote.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(buf.Bytes())
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c, err := httpx.NewClient("")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	out := filepath.Join(t.TempDir(), "out")

	outPath, err := Processor{Client: c}.Process(context.Background(), srv.URL+"/remote.png", out, "remote.png")
	if err != nil {
		t.Fatalf("Process 失败：%v", err)
	}
	if _, err := os.Stat(outPath); err != nil {
		t.Fatalf("产物不存在：%v", err)
	}

	// 远端 404：输入侧错误。
	_, err = Processor{Client: c}.Process(context.Background(), srv.URL+"/missing.png", out, "missing.png")
	if !pipeline.IsInput(err) {
		t.Fatalf("期望 InputError，实际 %v", err)
	}
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png 失败：%v", err)
	}
	writeFile(t, path, buf.Bytes())
}

func readPNG(t *testing.T, path string) image.Image {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("读取失败：%v", err)
	}
	img, err := png.Decode(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("decode png 失败：%v", err)
	}
	return img
}

func writeFile(t *testing.T, path string, b []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}
}
