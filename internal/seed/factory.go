// Package seed creates demo data through the service layer so every stored
// reference pair is written the same way production traffic writes it.
package seed

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"agora/internal/service"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
)

var nonHandle = regexp.MustCompile(`[^a-z0-9]+`)

// Factory builds valid service inputs filled with fake content.
type Factory struct {
	faker *gofakeit.Faker
	n     int
}

// NewFactory returns a factory. A zero seed picks a random one.
func NewFactory(seed int64) *Factory {
	return &Factory{faker: gofakeit.New(seed)}
}

func (f *Factory) next() int {
	f.n++
	return f.n
}

// Intn returns a value in [0, n).
func (f *Factory) Intn(n int) int {
	if n <= 1 {
		return 0
	}
	return f.faker.Number(0, n-1)
}

// User builds a profile for a new identity-provider account.
func (f *Factory) User() service.UpdateUserInput {
	n := f.next()
	person := f.faker.Person()
	return service.UpdateUserInput{
		ExternalID: "user_" + uuid.NewString(),
		Username:   handle(person.FirstName+person.LastName, n),
		Name:       truncate(person.FirstName+" "+person.LastName, 30),
		Bio:        f.faker.HipsterSentence(12),
		Image:      fmt.Sprintf("https://i.pravatar.cc/150?u=%s", f.faker.UUID()),
	}
}

// Community builds a community owned by creator.
func (f *Factory) Community(creator string) service.CreateCommunityInput {
	n := f.next()
	name := truncate(f.faker.Company()+" "+f.faker.JobDescriptor(), 120)
	if utf8.RuneCountInString(name) < 3 {
		name = "Community " + name
	}
	return service.CreateCommunityInput{
		ExternalID: "org_" + uuid.NewString(),
		Name:       name,
		Username:   handle(name, n),
		Image:      fmt.Sprintf("https://picsum.photos/seed/%s/400/400", f.faker.UUID()),
		Bio:        f.faker.Sentence(15),
		CreatedBy:  creator,
	}
}

// ThreadText is the body of a top-level thread.
func (f *Factory) ThreadText() string {
	return f.faker.Paragraph(1, 3, 12, "\n")
}

// ReplyText is the body of a reply.
func (f *Factory) ReplyText() string {
	return f.faker.Sentence(f.faker.Number(4, 16))
}

// handle turns s into a valid, unique username.
func handle(s string, n int) string {
	base := strings.Trim(nonHandle.ReplaceAllString(strings.ToLower(s), "-"), "-")
	if len(base) > 48 {
		base = strings.Trim(base[:48], "-")
	}
	if base == "" {
		base = "member"
	}
	return fmt.Sprintf("%s-%d", base, n)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:max]))
}
