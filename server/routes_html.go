package main

import (
	"strconv"
	"time"

	"github.com/go-fuego/fuego"
	"github.com/wantamink/pledgeservice/internal/models"
	"github.com/wantamink/pledgeservice/internal/pledge"
	. "maragu.dev/gomponents"
	. "maragu.dev/gomponents/html"
)

func base(title string, children ...Node) Node {
	return HTML(
		Attr("lang", "en"),
		Data("bs-theme", "dark"),
		Head(
			Meta(Attr("charset", "utf-8")),
			Meta(Attr("name", "viewport"), Attr("content", "width=device-width, initial-scale=1")),
			TitleEl(Text(title)),
			Link(
				Attr("href", "https://cdn.jsdelivr.net/npm/bootstrap@5.3.3/dist/css/bootstrap.min.css"),
				Attr("rel", "stylesheet"),
				Attr("integrity", "sha384-QWTKZyjpPEjISv5WaRU9OFeRpok6YctnYmDr5pNlyT2bRjXh0JMhjY6hW+ALEwIH"),
				Attr("crossorigin", "anonymous"),
			),
		),
		Body(
			Class("container py-5"),
			Div(children...),
		),
	)
}

func countyTable(counts []models.CountyCount) Node {
	if len(counts) == 0 {
		return P(Class("text-muted"), Text("No pledges yet. Be the first."))
	}
	return Table(
		Class("table"),
		THead(
			Class("table-dark"),
			Th(Text("County")),
			Th(Text("Pledges")),
		),
		TBody(
			Map(counts, func(c models.CountyCount) Node {
				return Tr(
					Td(Text(c.County)),
					Td(Text(strconv.FormatInt(c.PledgeCount, 10))),
				)
			}),
		),
	)
}

func renderHome(counts []models.CountyCount) fuego.Gomponent {
	return base(
		"Pledge",
		H1(Text("Pledge for your county")),
		Div(
			P(Text("Send KES 1 by MPESA to the campaign paybill with your county as the account number.")),
			P(Text("We only keep a one-way hash of your phone number.")),
		),
		H2(Textf("%d pledges so far", pledge.Total(counts))),
		countyTable(counts),
		P(
			A(Href("/api/memes"), Text("This week's memes")),
		),
	)
}

func renderCounties(counts []models.CountyCount) fuego.Gomponent {
	return base(
		"Pledges by county",
		H1(Text("Pledges by county")),
		countyTable(counts),
	)
}

func renderTimestampMinimal(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

func renderProfile(resp ProfileResponse) fuego.Gomponent {
	status := P(Text("No pledge recorded for this session."))
	if resp.Verified != nil {
		status = Table(
			Class("table"),
			TBody(
				Tr(Th(Text("County")), Td(Text(resp.Verified.County))),
				Tr(Th(Text("Verified At")), Td(Text(renderTimestampMinimal(resp.Verified.VerifiedAt)))),
			),
		)
	}
	return base(
		"Your Profile",
		H1(Text("Your pledge")),
		P(Class("text-muted"), Textf("User id %s", resp.ID)),
		status,
		A(Href("/logout"), Text("Sign out")),
	)
}

func renderMemes(resp MemesResponse) fuego.Gomponent {
	return base(
		"Meme contest",
		H1(Textf("Meme contest, week %d of %d", resp.Week, resp.Year)),
		If(len(resp.Memes) == 0, P(Text("No entries yet this week."))),
		Ul(
			Class("list-group"),
			Map(resp.Memes, func(m models.MemeEntry) Node {
				return Li(
					Class("list-group-item d-flex justify-content-between"),
					A(Href(m.URL), Text(m.URL)),
					Span(Class("badge bg-primary"), Textf("%d votes", m.VoteCount)),
				)
			}),
		),
	)
}
