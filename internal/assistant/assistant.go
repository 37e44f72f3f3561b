// Package assistant drafts candidate letters and grades CVs with a language
// model.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"cvreview/internal/review"
	"cvreview/internal/review/model"
	"cvreview/pkg/logger"
)

// ErrNotConfigured is returned when no model client is available.
var ErrNotConfigured = errors.New("OpenAI API key not configured")

const (
	maxCVChars       = 4000
	defaultRating    = 3
	unreadableCVText = "[Could not extract text from PDF - file may be image-based or corrupted]"
)

var (
	letterParams = Params{Temperature: 0.7, MaxTokens: 800}
	gradeParams  = Params{Temperature: 0.3, MaxTokens: 1000}
)

type language struct {
	name       string
	rejection  string
	acceptance string
	gradeIntro string
}

var languages = map[string]language{
	"en": {"English", "Application Update - %s", "Job Offer - %s Position", "Professional CV Analysis"},
	"pl": {"Polish", "Aktualizacja aplikacji - %s", "Oferta pracy - stanowisko %s", "Profesjonalna Analiza CV"},
	"es": {"Spanish", "Actualización de solicitud - %s", "Oferta de trabajo - Posición %s", "Análisis Profesional de CV"},
	"fr": {"French", "Mise à jour de candidature - %s", "Offre d'emploi - Poste %s", "Analyse Professionnelle de CV"},
	"de": {"German", "Bewerbungsupdate - %s", "Stellenangebot - Position %s", "Professionelle CV-Analyse"},
}

// lookupLanguage falls back to English for unknown codes.
func lookupLanguage(code string) language {
	if l, ok := languages[code]; ok {
		return l
	}
	return languages["en"]
}

type Service struct {
	llm Completer
}

// New returns a Service backed by llm. A nil llm yields a Service whose
// calls fail with ErrNotConfigured.
func New(llm Completer) *Service {
	return &Service{llm: llm}
}

// Letter drafts a rejection or acceptance letter.
func (s *Service) Letter(ctx context.Context, kind model.LetterKind, req model.LetterRequest) (model.LetterResponse, error) {
	if s.llm == nil {
		return model.LetterResponse{}, ErrNotConfigured
	}
	lang := lookupLanguage(req.Language)
	candidate := req.CandidateName
	if candidate == "" {
		candidate = CandidateName(req.DocumentName)
	}

	var system, subject string
	switch kind {
	case model.LetterRejection:
		system = "You are a professional HR expert who writes empathetic and constructive rejection letters."
		subject = fmt.Sprintf(lang.rejection, req.Position)
	case model.LetterAcceptance:
		system = "You are a professional HR expert who writes welcoming and enthusiastic job offer letters."
		subject = fmt.Sprintf(lang.acceptance, req.Position)
	default:
		return model.LetterResponse{}, fmt.Errorf("unknown letter kind %q", kind)
	}

	letter, err := s.llm.Complete(ctx, system, letterPrompt(kind, lang, candidate, req), letterParams)
	if err != nil {
		logger.Sugar.Errorf("Failed to generate %s letter for %s: %v", kind, req.DocumentName, err)
		return model.LetterResponse{}, fmt.Errorf("generate %s letter: %w", kind, err)
	}
	return model.LetterResponse{Letter: letter, Language: req.Language, Subject: subject}, nil
}

// Grade evaluates cvText against the position description.
func (s *Service) Grade(ctx context.Context, req model.GradeRequest, cvText string) (model.GradeResponse, error) {
	if s.llm == nil {
		return model.GradeResponse{}, ErrNotConfigured
	}
	lang := lookupLanguage(req.Language)
	system := fmt.Sprintf("You are a professional HR expert and CV evaluator. Provide thorough, objective assessments in %s.", lang.name)

	out, err := s.llm.Complete(ctx, system, gradePrompt(lang, CandidateName(req.DocumentName), req.PositionDescription, cvText), gradeParams)
	if err != nil {
		logger.Sugar.Errorf("Failed to grade CV %s: %v", req.DocumentID, err)
		return model.GradeResponse{}, fmt.Errorf("grade CV: %w", err)
	}
	rating, comment := ParseGrade(out)
	return model.GradeResponse{Comment: comment, Rating: rating, Language: req.Language}, nil
}

// CandidateName guesses a person's name from a CV file name, e.g.
// "Jane_Doe_CV.pdf" -> "Jane Doe".
func CandidateName(documentName string) string {
	r := strings.NewReplacer(".pdf", "", "_CV", "", "_Resume", "")
	name := r.Replace(documentName)
	name = strings.NewReplacer("_", " ", "-", " ").Replace(name)
	return strings.TrimSpace(name)
}

// ParseGrade extracts the "RATING:" and "COMMENT:" parts of a grading
// answer. The rating is clamped to 1..5 and defaults to 3; without a
// COMMENT line the whole answer is the comment.
func ParseGrade(answer string) (int, string) {
	lines := strings.Split(answer, "\n")
	rating := defaultRating
	comment := answer

	for i, line := range lines {
		if strings.HasPrefix(line, "RATING:") {
			if n, err := strconv.Atoi(strings.TrimSpace(strings.SplitN(line, ":", 3)[1])); err == nil {
				rating = max(review.MinRating, min(review.MaxRating, n))
			}
		} else if strings.HasPrefix(line, "COMMENT:") {
			comment = strings.TrimSpace(strings.TrimPrefix(line, "COMMENT:"))
			if rest := lines[i+1:]; len(rest) > 0 {
				comment += "\n" + strings.Join(rest, "\n")
			}
			break
		}
	}

	kept := make([]string, 0)
	for _, line := range strings.Split(comment, "\n") {
		if !strings.HasPrefix(line, "RATING:") {
			kept = append(kept, line)
		}
	}
	return rating, strings.TrimSpace(strings.Join(kept, "\n"))
}

func bulletList(items []string) string {
	var b strings.Builder
	for _, item := range items {
		if strings.TrimSpace(item) == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("- " + item)
	}
	return b.String()
}

func letterPrompt(kind model.LetterKind, lang language, candidate string, req model.LetterRequest) string {
	ratingLine := ""
	if req.AverageRating != nil {
		ratingLine = fmt.Sprintf("Average rating: %.1f/5.0", *req.AverageRating)
	}
	feedback := bulletList(req.Comments)

	var b strings.Builder
	if kind == model.LetterAcceptance {
		fmt.Fprintf(&b, "Write a professional, welcoming job offer acceptance letter in %s.\n\n", lang.name)
	} else {
		fmt.Fprintf(&b, "Write a professional, respectful job application rejection letter in %s.\n\n", lang.name)
	}
	fmt.Fprintf(&b, "Context:\n- Candidate: %s\n- Company: %s\n- Position: %s\n%s\n\n", candidate, req.CompanyName, req.Position, ratingLine)

	if kind == model.LetterAcceptance {
		if feedback == "" {
			feedback = "Strong positive impression from the review team"
		}
		fmt.Fprintf(&b, "Positive feedback from reviewers:\n%s\n\n", feedback)
		b.WriteString("Requirements:\n" +
			"1. Be professional and enthusiastic\n" +
			"2. Congratulate the candidate on being selected\n" +
			"3. If there are specific positive comments, incorporate them to highlight strengths\n" +
			"4. Express excitement about having them join the team\n" +
			"5. Mention next steps (HR will contact them soon)\n" +
			"6. Keep it warm and welcoming but professional\n" +
			"7. Use proper business letter format\n")
		fmt.Fprintf(&b, "8. Write in %s language\n\n", lang.name)
	} else {
		if feedback == "" {
			feedback = "No specific feedback provided"
		}
		fmt.Fprintf(&b, "Feedback from reviewers:\n%s\n\n", feedback)
		b.WriteString("Requirements:\n" +
			"1. Be professional and respectful\n" +
			"2. Thank the candidate for their interest\n" +
			"3. If there are specific comments, incorporate constructive feedback tactfully\n" +
			"4. Encourage future applications if appropriate\n" +
			"5. Keep it concise but warm\n" +
			"6. Use proper business letter format\n")
		fmt.Fprintf(&b, "7. Write in %s language\n\n", lang.name)
	}
	b.WriteString("Do not include company letterhead, addresses, or dates - just the letter content starting with the salutation.")
	return b.String()
}

func gradePrompt(lang language, candidate, position, cvText string) string {
	if strings.TrimSpace(cvText) == "" {
		cvText = unreadableCVText
	}
	if r := []rune(cvText); len(r) > maxCVChars {
		cvText = string(r[:maxCVChars])
	}
	return fmt.Sprintf(`You are an expert HR professional and CV evaluator. Analyze this CV against the given position requirements and provide a comprehensive evaluation in %[1]s (%[2]s).

Position Description:
%[3]s

CV Content:
%[4]s

Candidate: %[5]s

Please provide:
1. A detailed evaluation comment (2-3 paragraphs) covering:
   - How well the candidate matches the position requirements
   - Key strengths and relevant experience
   - Areas where the candidate may need development
   - Overall assessment of fit for the role

2. A numerical rating from 1-5 where:
   - 1 = Poor fit, major gaps in requirements
   - 2 = Below average fit, several important gaps
   - 3 = Average fit, meets basic requirements
   - 4 = Good fit, meets most requirements well
   - 5 = Excellent fit, exceeds requirements

Requirements:
- Be objective and professional
- Focus on job-relevant skills and experience
- Provide constructive feedback
- Write in %[1]s language
- Be specific about strengths and weaknesses
- Consider both technical and soft skills

Format your response as:
RATING: [1-5]
COMMENT: [Your detailed evaluation]`, lang.name, lang.gradeIntro, position, cvText, candidate)
}
