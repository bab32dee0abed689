package mcpserver

// NoteFormatContract describes the note layout gitnote reads and writes.
// LLM consumers should follow it when creating or updating notes.
const NoteFormatContract = `# gitnote Note Format Contract

Notes are plain text files inside a git working tree. Markdown files
(.md, .markdown, .mkd, ...) and common text files (.txt, .csv, .json, ...)
are indexed; everything else is ignored.

## Structure

` + "```" + `markdown
---
title: Weekly standup
updated: 2025-01-20 09:30:00Z
created: 2025-01-20 09:30:00Z
completed?: no
tags:
  - meeting-notes
  - project-x
---

Body text in standard Markdown.
` + "```" + `

## Rules

1. **Frontmatter is optional.** When present it starts on the very first
   line with ` + "`---`" + ` and ends at the next ` + "`---`" + ` line. A block that is
   never closed is treated as body text and left untouched.
2. **Fields** are ` + "`name: value`" + ` lines. Names match case-insensitively and
   a trailing ` + "`?`" + ` is optional, so ` + "`Completed`" + ` and ` + "`completed?`" + ` are the same field.
3. **completed?** holds ` + "`yes`" + ` or ` + "`no`" + `. Use the ` + "`toggle_completed`" + ` tool
   rather than editing it by hand; the tool also adds a frontmatter block
   to notes that have none.
4. **Timestamps** (` + "`created`" + `, ` + "`updated`" + `) use UTC in the layout
   ` + "`YYYY-MM-DD HH:MM:SSZ`" + `. ` + "`updated`" + ` is refreshed on every field change.
5. **Tags** are an indented YAML list under ` + "`tags:`" + `. Inline ` + "`#tags`" + ` in the
   body are picked up as well.
6. **Task lists** use ` + "`- [ ] item`" + ` and ` + "`- [x] item`" + `; listings report the
   number of finished tasks.
7. **File paths** use forward slashes, are relative to the repository root
   and must not start or end with ` + "`/`" + `. A name without an extension gets ` + "`.md`" + `.
   Names may not contain ` + "`/`" + ` and are trimmed of surrounding spaces.
8. **Hidden directories** (such as ` + "`.git`" + `) are never indexed.
9. **Encoding** is UTF-8.

## Example

` + "```" + `markdown
---
title: Groceries
updated: 2025-01-20 09:30:00Z
created: 2025-01-18 17:02:11Z
completed?: no
---

- [x] milk
- [ ] eggs
` + "```" + `
`
