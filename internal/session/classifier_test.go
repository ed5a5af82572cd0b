package session

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shareclub/curator/internal/channel"
)

const shareCardJSON = `{
	"app": "com.tencent.structmsg",
	"meta": {
		"news": {
			"title": "一篇分享",
			"desc": "description",
			"jumpUrl": "https://mp.weixin.qq.com/s?__biz=MzA5&mid=22&idx=1&sn=abc&chksm=tracking&scene=0"
		}
	}
}`

func TestClassifyText(t *testing.T) {
	t.Parallel()

	got := Classify(channel.TextSegment("hello"))
	require.Equal(t, ClassText, got.Kind)
	require.Equal(t, "hello", got.Text)
}

func TestClassifyImage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		segment channel.Segment
		want    ClassKind
		wantExt string
	}{
		{
			name:    "with url and extension",
			segment: channel.Segment{Type: channel.SegmentImage, URL: "https://cdn.example.com/a", File: "photo.png"},
			want:    ClassImage,
			wantExt: "png",
		},
		{
			name:    "filename without dot",
			segment: channel.Segment{Type: channel.SegmentImage, URL: "https://cdn.example.com/a", File: "photo"},
			want:    ClassImage,
			wantExt: "photo",
		},
		{
			name:    "missing url",
			segment: channel.Segment{Type: channel.SegmentImage, File: "photo.png"},
			want:    ClassImageMetaMissing,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Classify(tt.segment)
			require.Equal(t, tt.want, got.Kind)
			if tt.want == ClassImage {
				require.Equal(t, tt.wantExt, got.ImageExt)
			}
		})
	}
}

func TestClassifyShare(t *testing.T) {
	t.Parallel()

	got := Classify(channel.Segment{Type: channel.SegmentRich, Data: shareCardJSON})
	require.Equal(t, ClassShare, got.Kind)
	require.Equal(t, "一篇分享", got.ShareTitle)
	require.Equal(t, "https://mp.weixin.qq.com/s?__biz=MzA5&mid=22&idx=1&sn=abc", got.ShareURL)
}

// Classification must be total: malformed cards degrade to unsupported, never
// to an error.
func TestClassifyShareIsTotal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
	}{
		{name: "not json", data: "not-json"},
		{name: "empty object", data: "{}"},
		{name: "generic json", data: `{"foo": [1, 2, 3]}`},
		{name: "missing title", data: `{"meta":{"news":{"jumpUrl":"https://mp.weixin.qq.com/s?__biz=a&mid=b&idx=c&sn=d"}}}`},
		{name: "missing jump url", data: `{"meta":{"news":{"title":"t"}}}`},
		{name: "jump url missing sn", data: `{"meta":{"news":{"title":"t","jumpUrl":"https://mp.weixin.qq.com/s?__biz=a&mid=b&idx=c"}}}`},
		{name: "unparseable jump url", data: `{"meta":{"news":{"title":"t","jumpUrl":"://bad"}}}`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Classify(channel.Segment{Type: channel.SegmentRich, Data: tt.data})
			require.Equal(t, ClassUnsupported, got.Kind)
		})
	}
}

func TestClassifyUnknownSegment(t *testing.T) {
	t.Parallel()

	seg := channel.Segment{Type: channel.SegmentUnknown, Raw: []byte(`{"type":"record","data":{}}`)}
	got := Classify(seg)
	require.Equal(t, ClassUnsupported, got.Kind)
	require.Equal(t, seg, got.Segment)
}
