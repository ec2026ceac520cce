// Package invert 实现注入给流水线的处理回调：逐像素反色。
package invert

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"image/png"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/wraxau/AC-laba3/internal/infra/fsx"
	"github.com/wraxau/AC-laba3/internal/infra/httpx"
	"github.com/wraxau/AC-laba3/internal/pipeline"
)

// OutputPrefix 是产物文件名前缀：<out>/inverted_<原文件名>。
const OutputPrefix = "inverted_"

// Processor 读取 locator 指向的图片，逐像素反色，原子写入输出目录。
//
// 约束：
// - locator 是本地路径，或 http(s) URL（此时 Client 不能为空）
// - 输入允许是 JPEG/PNG（依赖标准库解码器）
// - 输出格式跟随原文件扩展名：.png → PNG，其余 → JPEG
type Processor struct {
	// Client 用于远端 locator 的下载；纯本地运行可以为 nil。
	Client *http.Client
}

// Process 满足 pipeline.ProcessFunc。失败按约定分类：
// 输入侧（读取/解码）→ *pipeline.InputError；输出侧（编码/写入）→ *pipeline.OutputError。
func (p Processor) Process(ctx context.Context, locator, outDir, name string) (string, error) {
	data, err := p.read(ctx, locator)
	if err != nil {
		return "", &pipeline.InputError{Locator: locator, Err: err}
	}
	if len(data) == 0 {
		return "", &pipeline.InputError{Locator: locator, Err: errors.New("文件为空")}
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", &pipeline.InputError{Locator: locator, Err: err}
	}

	inverted := invertImage(img)

	outName := OutputPrefix + name
	outPath := filepath.Join(outDir, outName)

	var buf bytes.Buffer
	if strings.EqualFold(filepath.Ext(name), ".png") {
		err = png.Encode(&buf, inverted)
	} else {
		// 质量：不需要太“讲究”，但要稳定可用；95 在体积与质量之间比较均衡。
		err = jpeg.Encode(&buf, inverted, &jpeg.Options{Quality: 95})
	}
	if err != nil {
		return "", &pipeline.OutputError{Path: outPath, Err: err}
	}

	if err := fsx.WriteFileAtomicReplace(outDir, outName, buf.Bytes()); err != nil {
		return "", &pipeline.OutputError{Path: outPath, Err: err}
	}
	return outPath, nil
}

func (p Processor) read(ctx context.Context, locator string) ([]byte, error) {
	if strings.HasPrefix(locator, "http://") || strings.HasPrefix(locator, "https://") {
		if p.Client == nil {
			return nil, errors.New("http client 为空")
		}
		return httpx.Get(ctx, p.Client, locator)
	}
	b, err := os.ReadFile(locator)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// invertImage 对每个像素取 255-分量（RGB 反转，alpha 保留）。
func invertImage(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := src.At(x, y).RGBA()
			i := dst.PixOffset(x-b.Min.X, y-b.Min.Y)
			dst.Pix[i+0] = 255 - uint8(r>>8)
			dst.Pix[i+1] = 255 - uint8(g>>8)
			dst.Pix[i+2] = 255 - uint8(bl>>8)
			dst.Pix[i+3] = uint8(a >> 8)
		}
	}
	return dst
}
