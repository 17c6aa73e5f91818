package embedded

import (
	_ "embed"
)

// Embed all prompt data files
//
//go:embed data/prompts/trend_detection_prompt.txt
var TrendDetectionPromptTxt []byte

//go:embed data/prompts/content_summary_prompt.txt
var ContentSummaryPromptTxt []byte

//go:embed data/prompts/voice_analysis_prompt.txt
var VoiceAnalysisPromptTxt []byte

//go:embed data/prompts/draft_generation_prompt.txt
var DraftGenerationPromptTxt []byte

//go:embed data/prompts/feedback_insights_prompt.txt
var FeedbackInsightsPromptTxt []byte

//go:embed data/prompts/draft_system_prompt.txt
var DraftSystemPromptTxt []byte
