package onebot

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestParseString(t *testing.T) {
	m := ParseString(`hi&#91;x&#93;[CQ:face,id=115,text=1&#44;1][CQ:at,qq=123] tail`)
	require.Len(t, m, 4)
	assert.Equal(t, "text", m[0].Type)
	assert.Equal(t, "hi[x]", m[0].Get("text"))
	assert.Equal(t, "face", m[1].Type)
	assert.Equal(t, "115", m[1].Get("id"))
	assert.Equal(t, "1,1", m[1].Get("text"))
	assert.Equal(t, "123", m[2].Get("qq"))
	assert.Equal(t, " tail", m[3].Get("text"))
}

func TestParseStringUnterminated(t *testing.T) {
	m := ParseString(`abc[CQ:face,id=1`)
	require.Len(t, m, 1)
	assert.Equal(t, "abc", m[0].Get("text"))

	assert.Empty(t, ParseString(""))
}

func TestCQStringRoundTrip(t *testing.T) {
	raw := `a&amp;b[CQ:image,file=http://x/y?a=1&#44;2][CQ:at,qq=10]`
	assert.Equal(t, raw, ParseString(raw).CQString())
}

func TestEscape(t *testing.T) {
	assert.Equal(t, "&amp;&#91;&#93;,", EscapeText("&[],"))
	assert.Equal(t, "&amp;&#91;&#93;&#44;", EscapeValue("&[],"))
	assert.Equal(t, "&[]&#44;", UnescapeText("&amp;&#91;&#93;&#44;"))
	assert.Equal(t, "&[],", UnescapeValue("&amp;&#91;&#93;&#44;"))
	assert.Equal(t, "plain", EscapeText("plain"))
}

func TestParseObject(t *testing.T) {
	arr := gjson.Parse(`[{"type":"text","data":{"text":"hello "}},{"type":"at","data":{"qq":"42"}},{"type":"text","data":{"text":" world"}}]`)
	m := ParseObject(arr)
	require.Len(t, m, 3)
	assert.Equal(t, "hello  world", m.PlainText())
	assert.Equal(t, "hello [CQ:at,qq=42] world", m.CQString())

	single := ParseObject(gjson.Parse(`{"type":"face","data":{"id":"1"}}`))
	require.Len(t, single, 1)
	assert.Equal(t, "face", single[0].Type)
}

func TestElementMarshalJSON(t *testing.T) {
	b, err := Image("base64://AAAA").MarshalJSON()
	require.NoError(t, err)
	r := gjson.ParseBytes(b)
	assert.Equal(t, "image", r.Get("type").String())
	assert.Equal(t, "base64://AAAA", r.Get("data.file").String())
}

func TestSummary(t *testing.T) {
	m := Message{Text("看"), ImageBytes([]byte{1, 2}), At(7), Face(1)}
	assert.Equal(t, "看[图片]@7[表情]", m.Summary())
	assert.True(t, strings.HasPrefix(m[1].Get("file"), "base64://"))
	assert.Equal(t, "all", At(0).Get("qq"))
}
