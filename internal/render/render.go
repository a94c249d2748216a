// Package render 使用 gg 将文本绘制为卡片图片
package render

import (
	"bytes"
	"image"
	"os"
	"strings"
	"sync"
	"unicode"

	"github.com/fogleman/gg"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
)

const (
	cardWidth   = 720
	padding     = 36
	titleSize   = 34
	bodySize    = 24
	lineSpacing = 1.5
	avatarSize  = 96
)

// Card 卡片内容
type Card struct {
	Title  string
	Lines  []string
	Footer string
	// Accent 标题栏颜色，形如 #3b82f6
	Accent string
	Avatar image.Image
}

// ErrMissingGlyph 字体缺少要绘制的字符
var ErrMissingGlyph = errors.New("字体缺少字形")

// Renderer 图片渲染器，可并发使用
type Renderer struct {
	font *opentype.Font
	buf  sfnt.Buffer
	mu   sync.Mutex
}

// New 加载字体，path 为空或加载失败时使用内置字体（不含中文字形）
func New(path string) *Renderer {
	f, err := LoadFont(path)
	if err != nil {
		if path != "" {
			log.Warnf("[渲染] 加载字体 %s 失败，使用内置字体: %v", path, err)
		}
		f, _ = opentype.Parse(goregular.TTF)
	}
	r := &Renderer{font: f}
	if !r.Supports("中文") {
		log.Warn("[渲染] 当前字体不含中文字形，含中文的图片将改为文字发送，可在 render.font 中配置中文字体")
	}
	return r
}

// Supports 字体是否包含 texts 中所有可见字符
func (r *Renderer) Supports(texts ...string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.missing(texts...) == 0
}

// missing 返回第一个没有字形的字符，全部存在时返回 0
func (r *Renderer) missing(texts ...string) rune {
	for _, s := range texts {
		for _, ch := range s {
			if unicode.IsSpace(ch) || unicode.IsControl(ch) {
				continue
			}
			if idx, err := r.font.GlyphIndex(&r.buf, ch); err != nil || idx == 0 {
				return ch
			}
		}
	}
	return 0
}

// LoadFont 读取 ttf/otf/ttc 字体文件
func LoadFont(path string) (*opentype.Font, error) {
	if path == "" {
		return nil, errors.New("未配置字体")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "读取字体失败")
	}
	if f, err := opentype.Parse(data); err == nil {
		return f, nil
	}
	col, err := opentype.ParseCollection(data)
	if err != nil {
		return nil, errors.Wrap(err, "解析字体失败")
	}
	return col.Font(0)
}

func (r *Renderer) face(size float64) font.Face {
	face, err := opentype.NewFace(r.font, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		log.Errorf("[渲染] 创建字体失败: %v", err)
		return nil
	}
	return face
}

// TextImage 将纯文本绘制为图片
func (r *Renderer) TextImage(text string) ([]byte, error) {
	return r.Card(Card{Lines: strings.Split(text, "\n")})
}

// Card 绘制卡片并编码为 PNG
func (r *Renderer) Card(c Card) ([]byte, error) {
	// opentype.Face 不是并发安全的
	r.mu.Lock()
	defer r.mu.Unlock()

	texts := append([]string{c.Title, c.Footer}, c.Lines...)
	if ch := r.missing(texts...); ch != 0 {
		return nil, errors.Wrapf(ErrMissingGlyph, "%q", ch)
	}

	title, body := r.face(titleSize), r.face(bodySize)
	if title == nil || body == nil {
		return nil, errors.New("字体不可用")
	}
	defer title.Close()
	defer body.Close()

	measure := gg.NewContext(1, 1)
	measure.SetFontFace(body)
	textWidth := float64(cardWidth - 2*padding)
	var lines []string
	for _, l := range c.Lines {
		lines = append(lines, wrap(measure, l, textWidth)...)
	}
	bodyLine := bodySize * lineSpacing

	headH := 0.0
	if c.Title != "" || c.Avatar != nil {
		headH = titleSize*lineSpacing + padding
		if c.Avatar != nil && headH < avatarSize+padding {
			headH = avatarSize + padding
		}
	}
	footH := 0.0
	if c.Footer != "" {
		footH = bodyLine
	}
	height := int(headH + float64(len(lines))*bodyLine + footH + 2*padding)

	dc := gg.NewContext(cardWidth, height)
	dc.SetHexColor("#ffffff")
	dc.Clear()

	y := float64(padding)
	if headH > 0 {
		accent := c.Accent
		if accent == "" {
			accent = "#3b82f6"
		}
		dc.SetHexColor(accent)
		dc.DrawRectangle(0, 0, cardWidth, headH)
		dc.Fill()

		x := float64(padding)
		if c.Avatar != nil {
			drawAvatar(dc, c.Avatar, x, (headH-avatarSize)/2)
			x += avatarSize + padding/2
		}
		dc.SetFontFace(title)
		dc.SetHexColor("#ffffff")
		dc.DrawStringAnchored(c.Title, x, headH/2, 0, 0.35)
		y = headH + padding
	}

	dc.SetFontFace(body)
	dc.SetHexColor("#1f2937")
	for _, l := range lines {
		dc.DrawStringAnchored(l, padding, y+bodyLine/2, 0, 0.35)
		y += bodyLine
	}
	if c.Footer != "" {
		dc.SetHexColor("#9ca3af")
		dc.DrawStringAnchored(c.Footer, cardWidth-padding, y+bodyLine/2, 1, 0.35)
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, errors.Wrap(err, "编码图片失败")
	}
	return buf.Bytes(), nil
}

func drawAvatar(dc *gg.Context, img image.Image, x, y float64) {
	scaled := image.NewRGBA(image.Rect(0, 0, avatarSize, avatarSize))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), img, img.Bounds(), draw.Over, nil)
	dc.Push()
	dc.DrawCircle(x+avatarSize/2, y+avatarSize/2, avatarSize/2)
	dc.Clip()
	dc.DrawImage(scaled, int(x), int(y))
	dc.ResetClip()
	dc.Pop()
}

// wrap 按宽度逐字符折行
func wrap(dc *gg.Context, s string, width float64) []string {
	if s == "" {
		return []string{""}
	}
	var (
		lines []string
		cur   []rune
	)
	for _, r := range s {
		next := append(cur, r)
		if w, _ := dc.MeasureString(string(next)); w > width && len(cur) > 0 {
			lines = append(lines, string(cur))
			cur = []rune{r}
			continue
		}
		cur = next
	}
	return append(lines, string(cur))
}
