package provider

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/petasbytes/recagent/internal/model"
)

// Demo is an offline backend that understands one request shape,
// "recommend <k> <genre> movies for user <id>", answers it with a tool call,
// and summarises the tool result that follows. It lets the CLI and API run
// end to end without credentials.
type Demo struct {
	delay time.Duration
}

// NewDemo returns a demo backend that pauses delay between fragments.
func NewDemo(delay time.Duration) *Demo { return &Demo{delay: delay} }

var recommendRe = regexp.MustCompile(`(?i)recommend\s+(\d+)\s+([a-z-]+)\s+(?:movies|films|items)\s+for\s+user\s+(\d+)`)

// demoChunk is the rune length of each emitted fragment.
const demoChunk = 12

func (d *Demo) Stream(ctx context.Context, req Request) (Stream, error) {
	steps := make([]Step, 0, 8)
	for _, c := range chunk(d.reply(req.Messages), demoChunk) {
		steps = append(steps, Step{Delay: d.delay, Fragment: Fragment{Type: FragmentContent, Content: c}})
	}
	return newStepStream(ctx, steps), nil
}

func (d *Demo) reply(msgs []model.Message) string {
	if len(msgs) == 0 {
		return "Hello! Ask me to recommend movies for a user."
	}
	last := msgs[len(msgs)-1]
	switch last.Role {
	case model.RoleTool:
		return summarize(last.Content)
	case model.RoleUser:
		if strings.HasPrefix(last.Content, "Please, use the generated JSON") {
			return "Sorry, I will answer in prose."
		}
		m := recommendRe.FindStringSubmatch(last.Content)
		if m == nil {
			return "I can recommend catalog items. Try: recommend 5 action movies for user 10."
		}
		k, _ := strconv.Atoi(m[1])
		user, _ := strconv.Atoi(m[3])
		return fmt.Sprintf(`{"name":"get_top_k_recommendations","arguments":{"user":%d,"k":%d,"filters":{"genres":[%q]}}}`,
			user, k, strings.ToLower(m[2]))
	}
	return "OK."
}

// summarize renders a dispatcher envelope as prose.
func summarize(envelope string) string {
	res := gjson.Parse(envelope)
	if res.Get("status").String() != "success" || res.Get("result.status").String() == "failure" {
		msg := res.Get("error").String()
		if msg == "" {
			msg = res.Get("result.message").String()
		}
		return "I could not get recommendations: " + msg
	}
	var titles []string
	for _, t := range res.Get("result.items.#.title").Array() {
		titles = append(titles, t.String())
	}
	if len(titles) == 0 {
		return "The tool returned no items."
	}
	return "Here are my picks: " + strings.Join(titles, ", ") + "."
}

func chunk(s string, n int) []string {
	r := []rune(s)
	var out []string
	for len(r) > 0 {
		k := min(n, len(r))
		out = append(out, string(r[:k]))
		r = r[k:]
	}
	return out
}
