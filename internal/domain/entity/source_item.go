package entity

import (
	"fmt"
	"strconv"
	"strings"
)

// RawItem 数据源适配器产出的原始条目 (source_key, payload, metadata)
type RawItem struct {
	SourceKey string
	Payload   Payload
	Metadata  Metadata
}

// Payload 原始内容；剧本为纯文本，影评与目录为结构化记录
type Payload interface {
	// Render 将内容渲染为可切块的文本
	Render(meta Metadata) string
}

// ScreenplayText 剧本原文
type ScreenplayText string

// Render 剧本文本原样返回
func (s ScreenplayText) Render(Metadata) string {
	return string(s)
}

// ReviewRecord 影评记录
type ReviewRecord struct {
	Body string `json:"body"`
}

// Render 渲染为 "Title / User Review by / Review" 三段格式
func (r ReviewRecord) Render(meta Metadata) string {
	if strings.TrimSpace(r.Body) == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString("Title: ")
	b.WriteString(titleWithYear(meta))
	b.WriteString("\n")
	if meta.Review != nil {
		fmt.Fprintf(&b, "User Review by %s", meta.Review.Author)
		if meta.Review.ReviewRating > 0 {
			fmt.Fprintf(&b, " (Rating: %s/10)", strconv.FormatFloat(meta.Review.ReviewRating, 'f', -1, 64))
		}
		b.WriteString("\n")
	}
	b.WriteString("Review: ")
	b.WriteString(strings.TrimSpace(r.Body))
	return b.String()
}

// CatalogRecord 影片目录记录
type CatalogRecord struct {
	Synopsis string   `json:"synopsis" yaml:"synopsis"`
	Genres   []string `json:"genres" yaml:"genres"`
}

// Render 渲染为影片概要文本
func (c CatalogRecord) Render(meta Metadata) string {
	if strings.TrimSpace(c.Synopsis) == "" && len(c.Genres) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Title: ")
	b.WriteString(titleWithYear(meta))
	if cm := meta.Catalog; cm != nil {
		if cm.Director != "" {
			b.WriteString("\nDirector: ")
			b.WriteString(cm.Director)
		}
		if cm.RuntimeMinutes > 0 {
			fmt.Fprintf(&b, "\nRuntime: %d min", cm.RuntimeMinutes)
		}
		if cm.CatalogRating > 0 {
			fmt.Fprintf(&b, "\nRating: %s/10", strconv.FormatFloat(cm.CatalogRating, 'f', -1, 64))
		}
	}
	if len(c.Genres) > 0 {
		b.WriteString("\nGenres: ")
		b.WriteString(strings.Join(c.Genres, ", "))
	}
	if s := strings.TrimSpace(c.Synopsis); s != "" {
		b.WriteString("\nSynopsis: ")
		b.WriteString(s)
	}
	return b.String()
}

func titleWithYear(meta Metadata) string {
	if y := meta.ReleaseYear(); y > 0 {
		return fmt.Sprintf("%s (%d)", meta.Title, y)
	}
	return meta.Title
}
