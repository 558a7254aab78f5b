package eduka

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"

	"hwscraper-backend/lib/htmlutil"
	"hwscraper-backend/lib/textutil"
)

// groupLinkPattern matches the assignment listing of one study group.
// Other anchors on the groups page (settings, archive, teacher chat)
// are noise.
var groupLinkPattern = regexp.MustCompile(`/my-groups/\d+/recipient-assignment`)

// Group is one study group from the my-groups page.
type Group struct {
	Name    string
	Subject string
	// URL of the group's assignment listing, absolute or portal-relative
	// exactly as found in the markup.
	URL string
}

// Assignment is one homework entry from a group's assignment listing.
type Assignment struct {
	Title        string
	TasksCount   int
	DeadlineText string
}

// ParseGroups extracts at most MaxGroups assignment-listing links from
// the rendered my-groups page. Subject comes from the second
// description line of the surrounding card; cards without one yield a
// group with an empty subject rather than nothing.
func ParseGroups(ctx context.Context, html string) ([]Group, error) {
	_, span := tracer.Start(ctx, "ParseGroups")
	defer span.End()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	var groups []Group
	doc.Find(".group-card").EachWithBreak(func(_ int, card *goquery.Selection) bool {
		link, found := assignmentLink(ctx, card)
		if !found {
			return true
		}

		lines := card.Find(".group-card__description-line")
		group := Group{
			Name: textutil.CollapseSpace(lines.First().Text()),
			URL:  link.Href,
		}
		if lines.Length() > 1 {
			group.Subject = textutil.CollapseSpace(lines.Eq(1).Text())
		}
		if group.Name == "" {
			group.Name = link.Name
		}
		groups = append(groups, group)
		return len(groups) < MaxGroups
	})

	// older deployments render the links without card wrappers
	if len(groups) == 0 {
		for _, anchor := range htmlutil.GetAnchors(ctx, doc.Find("a[href]")) {
			if !groupLinkPattern.MatchString(anchor.Href) {
				continue
			}
			groups = append(groups, Group{Name: anchor.Name, URL: anchor.Href})
			if len(groups) == MaxGroups {
				break
			}
		}
	}

	span.SetAttributes(attribute.Int("groups", len(groups)))
	return groups, nil
}

func assignmentLink(ctx context.Context, card *goquery.Selection) (htmlutil.Anchor, bool) {
	for _, anchor := range htmlutil.GetAnchors(ctx, card.Find("a[href]")) {
		if groupLinkPattern.MatchString(anchor.Href) {
			return anchor, true
		}
	}
	return htmlutil.Anchor{}, false
}

// ParseAssignments extracts at most MaxAssignmentsPerGroup entries from
// a rendered assignment listing. Entries without a title are skipped,
// they are skeleton rows the SPA keeps in the DOM while loading.
func ParseAssignments(ctx context.Context, html string) ([]Assignment, error) {
	_, span := tracer.Start(ctx, "ParseAssignments")
	defer span.End()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	var assignments []Assignment
	doc.Find(".assignment-list__item").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		title := textutil.CollapseSpace(sel.Find(".assignment__description-title").First().Text())
		if title == "" {
			return true
		}
		assignments = append(assignments, Assignment{
			Title:        title,
			TasksCount:   parseTasksCount(sel.Find(".assignment__description-tasks-count").First().Text()),
			DeadlineText: textutil.CollapseSpace(sel.Find(".assignment-list__deadline-label").First().Text()),
		})
		return len(assignments) < MaxAssignmentsPerGroup
	})

	span.SetAttributes(attribute.Int("assignments", len(assignments)))
	return assignments, nil
}

var digitsPattern = regexp.MustCompile(`\d+`)

// parseTasksCount pulls the number out of labels like "7 užduotys".
// Zero means the label was missing or numberless.
func parseTasksCount(label string) int {
	match := digitsPattern.FindString(label)
	if match == "" {
		return 0
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		return 0
	}
	return n
}
