package pagination

import (
	"context"
	"time"

	"agora/internal/models"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// AuthorRef is the author fields shown next to a thread.
type AuthorRef struct {
	ID         uint   `json:"id"`
	ExternalID string `json:"external_id"`
	Name       string `json:"name"`
	Username   string `json:"username"`
	Image      string `json:"image,omitempty"`
}

// CommunityRef is the community fields shown next to a thread or user.
type CommunityRef struct {
	ID         uint   `json:"id"`
	ExternalID string `json:"external_id"`
	Name       string `json:"name"`
	Username   string `json:"username"`
	Image      string `json:"image,omitempty"`
}

// MemberRef is a community member as listed on community pages.
type MemberRef = AuthorRef

// ReplyView is a reply with its author and nothing below it.
type ReplyView struct {
	ID        uint       `json:"id"`
	Text      string     `json:"text"`
	ParentID  *uint      `json:"parent_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	Author    *AuthorRef `json:"author"`
}

// ThreadView is a feed entry: the thread, its author and community, and its
// direct replies with their authors.
type ThreadView struct {
	ID        uint          `json:"id"`
	Text      string        `json:"text"`
	ParentID  *uint         `json:"parent_id,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	Author    *AuthorRef    `json:"author"`
	Community *CommunityRef `json:"community,omitempty"`
	Children  []ReplyView   `json:"children"`
}

// ReplyDetail is a direct reply on the detail page, with its own replies.
type ReplyDetail struct {
	ReplyView
	Children []ReplyView `json:"children"`
}

// ThreadDetail is the thread page: two levels of replies below the thread.
type ThreadDetail struct {
	ID        uint          `json:"id"`
	Text      string        `json:"text"`
	ParentID  *uint         `json:"parent_id,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	Author    *AuthorRef    `json:"author"`
	Community *CommunityRef `json:"community,omitempty"`
	Children  []ReplyDetail `json:"children"`
}

// UserSummary is a user row in listings.
type UserSummary struct {
	ID         uint      `json:"id"`
	ExternalID string    `json:"external_id"`
	Username   string    `json:"username"`
	Name       string    `json:"name"`
	Image      string    `json:"image,omitempty"`
	Bio        string    `json:"bio,omitempty"`
	Onboarded  bool      `json:"onboarded"`
	CreatedAt  time.Time `json:"created_at"`
}

// UserProfile is a user with the communities they belong to.
type UserProfile struct {
	UserSummary
	Communities []CommunityRef `json:"communities"`
}

// CommunitySummary is a community row in listings, with its members.
type CommunitySummary struct {
	ID         uint        `json:"id"`
	ExternalID string      `json:"external_id"`
	Username   string      `json:"username"`
	Name       string      `json:"name"`
	Image      string      `json:"image,omitempty"`
	Bio        string      `json:"bio,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	Members    []MemberRef `json:"members"`
}

// CommunityDetail adds the creator to a summary.
type CommunityDetail struct {
	CommunitySummary
	CreatedBy *AuthorRef `json:"created_by"`
}

// ActivityItem is a reply someone else left on one of the user's threads.
type ActivityItem = ReplyView

// Projector populates references for batches of entities. Each level is one
// query per reference kind; independent kinds load concurrently.
type Projector struct {
	db *gorm.DB
}

// NewProjector returns a projector reading through db.
func NewProjector(db *gorm.DB) *Projector {
	return &Projector{db: db}
}

// Authors loads author refs for ids. Missing users are absent from the map.
func (p *Projector) Authors(ctx context.Context, ids []uint) (map[uint]AuthorRef, error) {
	out := make(map[uint]AuthorRef, len(ids))
	ids = Unique(ids)
	if len(ids) == 0 {
		return out, nil
	}
	var users []models.User
	if err := p.db.WithContext(ctx).
		Select("id", "external_id", "name", "username", "image").
		Where("id IN ?", ids).
		Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = authorRef(u)
	}
	return out, nil
}

// Communities loads community refs for ids.
func (p *Projector) Communities(ctx context.Context, ids []uint) (map[uint]CommunityRef, error) {
	out := make(map[uint]CommunityRef, len(ids))
	ids = Unique(ids)
	if len(ids) == 0 {
		return out, nil
	}
	var communities []models.Community
	if err := p.db.WithContext(ctx).
		Select("id", "external_id", "name", "username", "image").
		Where("id IN ?", ids).
		Find(&communities).Error; err != nil {
		return nil, err
	}
	for _, c := range communities {
		out[c.ID] = CommunityRef{ID: c.ID, ExternalID: c.ExternalID, Name: c.Name, Username: c.Username, Image: c.Image}
	}
	return out, nil
}

type childRow struct {
	LinkParentID uint
	models.Thread
}

// Children loads the child threads of every parent, in children-list order.
func (p *Projector) Children(ctx context.Context, parentIDs []uint) (map[uint][]models.Thread, error) {
	out := make(map[uint][]models.Thread, len(parentIDs))
	parentIDs = Unique(parentIDs)
	if len(parentIDs) == 0 {
		return out, nil
	}
	var rows []childRow
	if err := p.db.WithContext(ctx).
		Table("thread_children").
		Select("thread_children.parent_id AS link_parent_id, threads.*").
		Joins("JOIN threads ON threads.id = thread_children.child_id").
		Where("thread_children.parent_id IN ?", parentIDs).
		Order("thread_children.parent_id, thread_children.created_at, thread_children.child_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.LinkParentID] = append(out[r.LinkParentID], r.Thread)
	}
	return out, nil
}

// Members loads member refs for every community, ordered by join time.
func (p *Projector) Members(ctx context.Context, communityIDs []uint) (map[uint][]MemberRef, error) {
	out := make(map[uint][]MemberRef, len(communityIDs))
	communityIDs = Unique(communityIDs)
	if len(communityIDs) == 0 {
		return out, nil
	}
	type row struct {
		CommunityID uint
		models.User
	}
	var rows []row
	if err := p.db.WithContext(ctx).
		Table("community_members").
		Select("community_members.community_id AS community_id, users.id, users.external_id, users.name, users.username, users.image").
		Joins("JOIN users ON users.id = community_members.user_id").
		Where("community_members.community_id IN ?", communityIDs).
		Order("community_members.community_id, community_members.created_at, users.id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.CommunityID] = append(out[r.CommunityID], authorRef(r.User))
	}
	return out, nil
}

// UserCommunities loads the communities listed on a user, ordered by join time.
func (p *Projector) UserCommunities(ctx context.Context, userID uint) ([]CommunityRef, error) {
	var communities []models.Community
	if err := p.db.WithContext(ctx).
		Table("user_communities").
		Select("communities.id, communities.external_id, communities.name, communities.username, communities.image").
		Joins("JOIN communities ON communities.id = user_communities.community_id").
		Where("user_communities.user_id = ?", userID).
		Order("user_communities.created_at, communities.id").
		Scan(&communities).Error; err != nil {
		return nil, err
	}
	out := make([]CommunityRef, 0, len(communities))
	for _, c := range communities {
		out = append(out, CommunityRef{ID: c.ID, ExternalID: c.ExternalID, Name: c.Name, Username: c.Username, Image: c.Image})
	}
	return out, nil
}

// ThreadViews projects feed entries: author, community and direct replies
// with their authors. Nothing deeper is loaded.
func (p *Projector) ThreadViews(ctx context.Context, threads []models.Thread) ([]ThreadView, error) {
	out := make([]ThreadView, 0, len(threads))
	if len(threads) == 0 {
		return out, nil
	}

	ids := make([]uint, 0, len(threads))
	var communityIDs []uint
	for _, t := range threads {
		ids = append(ids, t.ID)
		if t.CommunityID != nil {
			communityIDs = append(communityIDs, *t.CommunityID)
		}
	}

	var children map[uint][]models.Thread
	var communities map[uint]CommunityRef
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		children, err = p.Children(gctx, ids)
		return err
	})
	g.Go(func() error {
		var err error
		communities, err = p.Communities(gctx, communityIDs)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	authorIDs := authorIDsOf(threads)
	for _, kids := range children {
		authorIDs = append(authorIDs, authorIDsOf(kids)...)
	}
	authors, err := p.Authors(ctx, authorIDs)
	if err != nil {
		return nil, err
	}

	for _, t := range threads {
		out = append(out, ThreadView{
			ID:        t.ID,
			Text:      t.Text,
			ParentID:  t.ParentID,
			CreatedAt: t.CreatedAt,
			Author:    lookupAuthor(authors, t.AuthorID),
			Community: lookupCommunity(communities, t.CommunityID),
			Children:  replyViews(children[t.ID], authors),
		})
	}
	return out, nil
}

// ThreadDetail projects one thread with two levels of replies, each with its author.
func (p *Projector) ThreadDetail(ctx context.Context, t models.Thread) (*ThreadDetail, error) {
	var children map[uint][]models.Thread
	var communities map[uint]CommunityRef

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		children, err = p.Children(gctx, []uint{t.ID})
		return err
	})
	g.Go(func() error {
		var err error
		var ids []uint
		if t.CommunityID != nil {
			ids = []uint{*t.CommunityID}
		}
		communities, err = p.Communities(gctx, ids)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	direct := children[t.ID]
	directIDs := make([]uint, 0, len(direct))
	for _, c := range direct {
		directIDs = append(directIDs, c.ID)
	}
	grandchildren, err := p.Children(ctx, directIDs)
	if err != nil {
		return nil, err
	}

	authorIDs := append([]uint{t.AuthorID}, authorIDsOf(direct)...)
	for _, kids := range grandchildren {
		authorIDs = append(authorIDs, authorIDsOf(kids)...)
	}
	authors, err := p.Authors(ctx, authorIDs)
	if err != nil {
		return nil, err
	}

	detail := &ThreadDetail{
		ID:        t.ID,
		Text:      t.Text,
		ParentID:  t.ParentID,
		CreatedAt: t.CreatedAt,
		Author:    lookupAuthor(authors, t.AuthorID),
		Community: lookupCommunity(communities, t.CommunityID),
		Children:  make([]ReplyDetail, 0, len(direct)),
	}
	for _, c := range direct {
		detail.Children = append(detail.Children, ReplyDetail{
			ReplyView: replyView(c, authors),
			Children:  replyViews(grandchildren[c.ID], authors),
		})
	}
	return detail, nil
}

// Replies projects threads as replies with their authors.
func (p *Projector) Replies(ctx context.Context, threads []models.Thread) ([]ReplyView, error) {
	authors, err := p.Authors(ctx, authorIDsOf(threads))
	if err != nil {
		return nil, err
	}
	return replyViews(threads, authors), nil
}

// CommunitySummaries projects communities with their members.
func (p *Projector) CommunitySummaries(ctx context.Context, communities []models.Community) ([]CommunitySummary, error) {
	ids := make([]uint, 0, len(communities))
	for _, c := range communities {
		ids = append(ids, c.ID)
	}
	members, err := p.Members(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]CommunitySummary, 0, len(communities))
	for _, c := range communities {
		out = append(out, communitySummary(c, members[c.ID]))
	}
	return out, nil
}

// CommunityDetail projects a community with its creator and members.
func (p *Projector) CommunityDetail(ctx context.Context, c models.Community) (*CommunityDetail, error) {
	var members map[uint][]MemberRef
	var creators map[uint]AuthorRef

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		members, err = p.Members(gctx, []uint{c.ID})
		return err
	})
	g.Go(func() error {
		var err error
		creators, err = p.Authors(gctx, []uint{c.CreatedByID})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &CommunityDetail{
		CommunitySummary: communitySummary(c, members[c.ID]),
		CreatedBy:        lookupAuthor(creators, c.CreatedByID),
	}, nil
}

// UserProfile projects a user with their communities.
func (p *Projector) UserProfile(ctx context.Context, u models.User) (*UserProfile, error) {
	communities, err := p.UserCommunities(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	return &UserProfile{UserSummary: UserSummaryOf(u), Communities: communities}, nil
}

// UserSummaryOf copies the listing fields of u.
func UserSummaryOf(u models.User) UserSummary {
	return UserSummary{
		ID:         u.ID,
		ExternalID: u.ExternalID,
		Username:   u.Username,
		Name:       u.Name,
		Image:      u.Image,
		Bio:        u.Bio,
		Onboarded:  u.Onboarded,
		CreatedAt:  u.CreatedAt,
	}
}

// Unique drops zero ids and duplicates, keeping first-seen order.
func Unique(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func communitySummary(c models.Community, members []MemberRef) CommunitySummary {
	if members == nil {
		members = []MemberRef{}
	}
	return CommunitySummary{
		ID:         c.ID,
		ExternalID: c.ExternalID,
		Username:   c.Username,
		Name:       c.Name,
		Image:      c.Image,
		Bio:        c.Bio,
		CreatedAt:  c.CreatedAt,
		Members:    members,
	}
}

func authorRef(u models.User) AuthorRef {
	return AuthorRef{ID: u.ID, ExternalID: u.ExternalID, Name: u.Name, Username: u.Username, Image: u.Image}
}

func authorIDsOf(threads []models.Thread) []uint {
	ids := make([]uint, 0, len(threads))
	for _, t := range threads {
		ids = append(ids, t.AuthorID)
	}
	return ids
}

func lookupAuthor(authors map[uint]AuthorRef, id uint) *AuthorRef {
	if a, ok := authors[id]; ok {
		return &a
	}
	return nil
}

func lookupCommunity(communities map[uint]CommunityRef, id *uint) *CommunityRef {
	if id == nil {
		return nil
	}
	if c, ok := communities[*id]; ok {
		return &c
	}
	return nil
}

func replyView(t models.Thread, authors map[uint]AuthorRef) ReplyView {
	return ReplyView{
		ID:        t.ID,
		Text:      t.Text,
		ParentID:  t.ParentID,
		CreatedAt: t.CreatedAt,
		Author:    lookupAuthor(authors, t.AuthorID),
	}
}

func replyViews(threads []models.Thread, authors map[uint]AuthorRef) []ReplyView {
	out := make([]ReplyView, 0, len(threads))
	for _, t := range threads {
		out = append(out, replyView(t, authors))
	}
	return out
}
