package handler

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/noirblog/internal/db"
	"github.com/noirblog/internal/service"
)

const recentPostsOnSearch = 5

// Topics lists every topic with its post count.
func (a *API) Topics(c *gin.Context) {
	topics, err := a.topics.ListWithCounts()
	if err != nil {
		a.handleServiceError(c, err)
		return
	}
	a.renderHTML(c, http.StatusOK, "topics.html", gin.H{
		"title":  "Topics",
		"topics": topics,
	})
}

// TopicPosts lists the posts of a topic addressed by id.
func (a *API) TopicPosts(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		a.renderError(c, http.StatusNotFound, "Topic not found.")
		return
	}
	topic, err := a.topics.Get(id)
	if err != nil {
		a.handleServiceError(c, err)
		return
	}
	a.renderTopic(c, topic, fmt.Sprintf("/topic/%d", topic.ID))
}

// TopicBySlug lists the posts of a topic addressed by slug.
func (a *API) TopicBySlug(c *gin.Context) {
	topic, err := a.topics.GetBySlug(c.Param("slug"))
	if err != nil {
		a.handleServiceError(c, err)
		return
	}
	a.renderTopic(c, topic, "/t/"+topic.Slug)
}

// renderTopic 列出话题下的文章，q 参数在标题与正文中过滤。
func (a *API) renderTopic(c *gin.Context, topic *db.Topic, basePath string) {
	filter := strings.TrimSpace(c.Query("q"))
	result, err := a.posts.List(service.PostFilter{
		Query:   filter,
		TopicID: topic.ID,
		Page:    parsePage(c),
	})
	if err != nil {
		a.handleServiceError(c, err)
		return
	}

	pageBase := basePath + "?"
	if filter != "" {
		pageBase += "q=" + url.QueryEscape(filter) + "&"
	}

	a.renderHTML(c, http.StatusOK, "index.html", gin.H{
		"title":          topic.Name,
		"heading":        topic.Name,
		"posts":          result.Posts,
		"page":           result.Page,
		"totalPages":     result.TotalPages,
		"pageBase":       pageBase,
		"filterAction":   basePath,
		"filter":         filter,
		"quotaRemaining": a.quotaRemaining(c),
	})
}

// Search 按标题搜索文章；空查询时展示最新文章。
func (a *API) Search(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		recent, err := a.posts.Recent(recentPostsOnSearch)
		if err != nil {
			a.handleServiceError(c, err)
			return
		}
		a.renderHTML(c, http.StatusOK, "search.html", gin.H{
			"title": "Search",
			"posts": recent,
		})
		return
	}

	posts, err := a.posts.Search(query)
	if err != nil {
		a.handleServiceError(c, err)
		return
	}
	a.renderHTML(c, http.StatusOK, "search.html", gin.H{
		"title": "Search",
		"query": query,
		"posts": posts,
	})
}
